// Package audit implements the command audit log.
//
// Every command execution is appended as one JSON line carrying the caller,
// the subscriber session, the action, its parameters, the outcome and the
// latency. Files are rotated by size and age.
package audit
