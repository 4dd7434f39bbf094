// Package version exposes build metadata of the breathe-tracking binaries.
//
// Version, Commit and BuildTime are injected with ldflags. Local builds fall
// back to the VCS stamp the Go toolchain embeds in the binary.
package version
