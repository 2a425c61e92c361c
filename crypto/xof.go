package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

// VdafVersion is the draft version byte placed at the start of every domain separation tag.
const VdafVersion uint8 = 8

// DomainSeparationTag builds the 8-byte tag binding XOF output to an algorithm and a usage:
// version || algorithm class (0) || algorithm id (BE) || usage (BE).
func DomainSeparationTag(algorithmID uint32, usage uint16) []byte {
	dst := make([]byte, 0, 8)
	dst = append(dst, VdafVersion, 0)
	dst = binary.BigEndian.AppendUint32(dst, algorithmID)
	dst = binary.BigEndian.AppendUint16(dst, usage)
	return dst
}

// Xof is an extendable-output function instance. Reads never fail.
type Xof = io.Reader

// XofAlgorithm constructs XOF instances keyed by a seed, a domain separation tag
// and a list of binder strings.
type XofAlgorithm interface {
	Name() string
	SeedSize() int
	New(seed []byte, dst []byte, binders ...[]byte) (Xof, error)
}

var (
	// XofShake128 absorbs len(dst) || dst || seed || binders into SHAKE128.
	XofShake128 XofAlgorithm = shake128Algorithm{}

	// XofFixedKeyAes128 derives an AES-128 key from the tag and binders and
	// hashes seed ^ counter blocks through it in MMO mode.
	XofFixedKeyAes128 XofAlgorithm = fixedKeyAes128Algorithm{}
)

// XofByName resolves an algorithm by its configuration name.
func XofByName(name string) (XofAlgorithm, error) {
	switch name {
	case "", XofShake128.Name():
		return XofShake128, nil
	case XofFixedKeyAes128.Name():
		return XofFixedKeyAes128, nil
	}
	return nil, fmt.Errorf("unknown xof %q", name)
}

// XofNext reads n bytes from the stream.
func XofNext(x Xof, n int) []byte {
	buf := make([]byte, n)
	mustRead(x, buf)
	return buf
}

type shake128Algorithm struct{}

func (shake128Algorithm) Name() string  { return "shake128" }
func (shake128Algorithm) SeedSize() int { return 16 }

func (a shake128Algorithm) New(seed []byte, dst []byte, binders ...[]byte) (Xof, error) {
	if len(seed) != a.SeedSize() {
		return nil, fmt.Errorf("xof %s: invalid seed length %d", a.Name(), len(seed))
	}
	if len(dst) > 255 {
		return nil, fmt.Errorf("xof %s: domain separation tag too long", a.Name())
	}
	h := sha3.NewShake128()
	h.Write([]byte{byte(len(dst))})
	h.Write(dst)
	h.Write(seed)
	for _, b := range binders {
		h.Write(b)
	}
	return h, nil
}

type fixedKeyAes128Algorithm struct{}

func (fixedKeyAes128Algorithm) Name() string  { return "fixedkeyaes128" }
func (fixedKeyAes128Algorithm) SeedSize() int { return aes.BlockSize }

func (a fixedKeyAes128Algorithm) New(seed []byte, dst []byte, binders ...[]byte) (Xof, error) {
	if len(seed) != a.SeedSize() {
		return nil, fmt.Errorf("xof %s: invalid seed length %d", a.Name(), len(seed))
	}
	if len(dst) > 0xffff {
		return nil, fmt.Errorf("xof %s: domain separation tag too long", a.Name())
	}

	kdf := sha3.NewCShake128(nil, []byte("FixedKeyAes128"))
	kdf.Write(binary.LittleEndian.AppendUint16(nil, uint16(len(dst))))
	kdf.Write(dst)
	for _, b := range binders {
		kdf.Write(b)
	}
	key := XofNext(kdf, aes.BlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	x := &fixedKeyAesXof{cipher: block, bufUsed: aes.BlockSize}
	copy(x.seed[:], seed)
	return x, nil
}

type fixedKeyAesXof struct {
	cipher  cipher.Block
	seed    [aes.BlockSize]byte
	counter uint64
	buf     [aes.BlockSize]byte
	bufUsed int
}

func (x *fixedKeyAesXof) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if x.bufUsed == aes.BlockSize {
			x.hashBlock()
		}
		c := copy(p[n:], x.buf[x.bufUsed:])
		x.bufUsed += c
		n += c
	}
	return n, nil
}

// hashBlock fills buf with AES_k(σ(s)) ^ σ(s) where s = seed ^ le128(counter)
// and σ(lo || hi) = hi || (hi ^ lo).
func (x *fixedKeyAesXof) hashBlock() {
	var block [aes.BlockSize]byte
	copy(block[:], x.seed[:])
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], x.counter)
	XorInplace(block[:8], ctr[:])
	x.counter++

	var sigma [aes.BlockSize]byte
	copy(sigma[:8], block[8:])
	copy(sigma[8:], block[8:])
	XorInplace(sigma[8:], block[:8])

	x.cipher.Encrypt(x.buf[:], sigma[:])
	XorInplace(x.buf[:], sigma[:])
	x.bufUsed = 0
}
