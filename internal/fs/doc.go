// Package fs provides filesystem abstractions for testability and fault
// injection.
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, ...)
//
// # Implementations
//
//   - [LocalFS]: production implementation over the os package
//   - [FaultyFS]: test utility that injects I/O errors into matching files
//
// Production code uses fs.Default (a [LocalFS]); tests inject [FaultyFS]
// to exercise failure paths:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("snapshot", fs.Fault{FailAfterBytes: 1024})
//
// The interfaces deliberately carry no context.Context: local filesystem
// calls are not interruptible at the syscall level. Backends with real
// cancellation points live behind [blobstore.Store] instead.
package fs
