// Package crypto provides the arithmetic and randomness primitives Poplar1 is built on.
//
// This package implements:
//
//   - Field64, the prime field GF(2^64 - 2^32 + 1) used for inner IDPF levels
//   - Field255, the prime field GF(2^255 - 19) used for the leaf level, backed by
//     the constant-time edwards25519 field implementation
//   - FieldElement, the generic constraint the protocol code is written against
//   - Extendable-output functions (SHAKE128 and fixed-key AES-128) keyed by a seed,
//     a domain separation tag and binder strings
//   - Prng, an endless stream of field elements sampled from an XOF
//
// # Field Operations
//
// Field elements are small value types. Every operation returns a new value and
// equality runs in constant time. Encodings are fixed-size little-endian and
// decoding rejects non-canonical values.
//
// # Randomness
//
// Field elements are sampled from XOF output by rejection sampling: EncodedSize
// bytes are read, masked to the next power of two above the modulus, and
// discarded when they are not below it. Two parties holding the same seed, tag
// and binders derive identical element sequences.
package crypto
