// Package comm provides the collective-operation substrate that coordinates
// a fixed set of ranks: barrier, gather, allgather, and reduce.
//
// Two implementations are provided:
//
//   - NewLocalGroup: an in-process group where each rank is a goroutine.
//     Deterministic and dependency-free, it serves both as the transport for
//     single-process runs and as the fake that coordinator tests run against.
//   - NewNATS: a NATS-backed transport where each rank is a separate process,
//     rendezvousing on a run-scoped subject namespace.
//
// Every rank must execute the same sequence of collective calls, in the same
// order, the same number of times. A rank that skips a collective deadlocks
// its peers; the NATS transport converts that deadlock into
// types.ErrCollectiveTimeout when the context carries a deadline.
package comm
