// Package common holds helpers shared by several services.
//
// It provides the remote incident store (a gRPC client wrapper with call
// timeouts and non-blocking watch registration) and detection of the
// current system actor (hostname/username) for report signatures.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
