// Package types contains the shared data model and interfaces for the
// quadrant library.
//
// It is imported by every other package and therefore must not depend on any
// other quadrant package. The root quadrant package re-exports the public
// pieces via type aliases, so library users normally write quadrant.Tally,
// quadrant.Logger, etc.
package types
