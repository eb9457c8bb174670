// Package sds implements the dynamic byte string used as the basic value
// currency of the store. An S is a length-explicit, binary-safe byte buffer
// with an over-allocation policy tuned for append-heavy workloads: capacity
// doubles until it reaches 1 MiB and grows by 1 MiB steps afterwards.
//
// All mutating operations return the (possibly reallocated) buffer and the
// caller must replace its handle, mirroring how the rest of the codebase
// threads buffers through call sites.
package sds
