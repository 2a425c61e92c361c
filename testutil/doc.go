// Package testutil provides deterministic randomness and measurement
// generators for tests and reproducible command-line runs.
package testutil
