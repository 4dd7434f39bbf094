// Package session implements the observable per-session state store.
//
// The store maps named channels to their latest value. Every channel has
// exactly one writer, obtained with Claim, and any number of observers.
// Each publish gets the next sequence number of its channel and is fanned
// out to observers synchronously and in order, so all observers see the same
// non-decreasing sequence per channel.
//
// Observe is the contract a UI shell consumes: it gets the latest value on
// registration, every publish after it, and a cleared value (nil Data) when
// the session is Reset. The HTTP API does not observe; it polls Latest and
// Snapshot instead.
package session
