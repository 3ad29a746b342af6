// Package ir provides the constrained value model shared by every relplan
// package: cell values, literals, and the canonical JSON used to fingerprint
// plans.
//
// ir imports nothing internal. All other internal packages may import it.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers and timestamps
//   - Null is a value (IRNull), never a nil interface in stored data
//   - Canonical JSON follows RFC 8785 so fingerprints are stable
package ir
