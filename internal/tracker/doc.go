// Package tracker follows incidents through the PENDING to RESOLVED transition.
//
// Tracker watches one incident document at a time; Feed follows the pending
// incidents of a sensor list. Both report resolutions through one shared
// Resolutions ledger, so an incident seen resolved through both paths emits
// its effects once.
//
// Tracker and Feed are not safe for concurrent use. Their methods and the
// push deliveries run on the owner goroutine; push callbacks from the store
// are handed over through a Poster.
package tracker
