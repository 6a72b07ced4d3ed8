// Package storage is the document store behind the event engine.
//
// Records are JSON documents grouped into named collections. Drivers:
//   - memory: in-process maps (default)
//   - file:   memory + snapshot/journal files, dependency-free
//   - sqlite: single-file SQLite database
//   - redis:  one hash per collection, shareable between processes
package storage
