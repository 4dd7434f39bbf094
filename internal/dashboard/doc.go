// Package dashboard runs one sensor session.
//
// An Engine owns the alert aggregator, the incident tracker and the sensor
// incident feed. Every mutation of that state runs on a single owner
// goroutine (Run) fed by a dispatch queue, while producers such as the sensor
// feed, the remote incident store and user actions may call the Engine from
// any goroutine. Results are published to the session store channels.
package dashboard
