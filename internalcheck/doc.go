// Package internalcheck holds static policy tests over the module, mostly over
// the packages that handle secret-shared values: crypto, idpf and poplar1.
//
// # Policies
//
//   - No == or != on byte slices or byte arrays. Use crypto/subtle.
//   - No == or != on field elements. Use the constant-time Equal method.
//   - No %x formatting in errors or format strings, so key material and
//     shares never end up hex-dumped in logs.
//   - No production package imports testutil.
//
// The package has no exported API.
package internalcheck
