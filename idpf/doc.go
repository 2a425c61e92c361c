// Package idpf implements the incremental distributed point function used by Poplar1.
//
// An IDPF is programmed by a client at a secret path alpha of a binary tree of
// depth bits. Gen returns a public share (one correction word per level) and two
// keys. Evaluating key j at a node with Eval yields an additive share of a value
// that is nonzero only on alpha's path: a pair of Field64 elements at inner
// levels and a pair of Field255 elements at the leaf level.
//
// Seeds are expanded with the fixed-key AES-128 XOF, bound to a binder string
// (the report nonce), so keys generated for one report cannot be replayed
// against another.
//
// Evaluation at many prefixes of the same level shares work through an
// EvalCache that remembers the seed and control bit of every visited node.
package idpf
