// Package alerts keeps the bounded, de-duplicated alert history shown to the user.
//
// Two aggregation policies exist and are not interchangeable:
//   - replace-merge: every batch is merged in front of the history, duplicates
//     are bumped to the front, the tail past the cap is dropped.
//   - insert-new-only: only messages absent from the history are inserted at
//     the front, each one triggering a single notification; known messages
//     keep their position.
//
// A deployment picks one policy through configuration.
package alerts
