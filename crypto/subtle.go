package crypto

import "crypto/subtle"

// XorInplace sets l[i] ^= r[i] for i < min(len(l), len(r)).
func XorInplace(l []byte, r []byte) {
	n := min(len(l), len(r))
	subtle.XORBytes(l[:n], l[:n], r[:n])
}

// ConstantTimeEqual reports whether a and b hold the same bytes without
// short-circuiting on the first difference.
func ConstantTimeEqual(a []byte, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeBoolEqual returns 1 if a == b.
func ConstantTimeBoolEqual(a bool, b bool) int {
	return subtle.ConstantTimeByteEq(boolToByte(a), boolToByte(b))
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
