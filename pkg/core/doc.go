// Package core defines the shared language of the objsql system.
//
// This package contains:
//   - Object ids and the reserved reference values (null, inline)
//   - Data types and the type tags persisted next to every value
//   - Error kinds reported by the traversal engine
//   - The storage contract (table descriptors, rows, raw values, batches)
//   - Adapter configuration
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
