// Package supervisor maintains the link to the vehicle.
//
// A single Supervisor goroutine moves through Idle, Connecting, Live and
// BackingOff until its context is cancelled (Stopped). While Live it feeds
// every decoded message into the shared vehicle state. A receive failure
// marks the vehicle disconnected, closes the link, records one warning and
// retries after an exponential backoff (1s growing by 1.8x up to 10s by
// default).
//
// The receive timeout bounds how long a shutdown can be delayed.
package supervisor
