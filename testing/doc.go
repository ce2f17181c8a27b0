// Package testing provides test infrastructure for quadrant consumers and
// for the library's own test suite: an embedded NATS server harness for
// exercising the NATS-backed transport without external dependencies.
//
// Import with an alias to avoid shadowing the standard library:
//
//	qtesting "github.com/arloliu/quadrant/testing"
package testing
