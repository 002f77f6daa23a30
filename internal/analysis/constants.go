// Package analysis is the scanning core shared by every triage pass.
// It includes bounded string extraction, substring classification, category
// and symbol scanning, and heuristic fixed-layout structure recovery.
package analysis

// Constants for analysis operations
const (
	// MinStringLength is the default minimum length for extracted strings
	MinStringLength = 4

	// MaxStringLength is the default maximum length for string extraction
	MaxStringLength = 512

	// DefaultMaxResults is the per-category cap used when a category does not set one
	DefaultMaxResults = 50

	// DefaultSymbolStride is the address stride for symbol scans (instruction alignment)
	DefaultSymbolStride = 4

	// DefaultStructStride is the address stride for structure recovery (pointer alignment)
	DefaultStructStride = 8

	// demangleCacheSize bounds the per-scan demangle memo
	demangleCacheSize = 4096
)
