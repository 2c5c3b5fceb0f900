// Package recorder persists telemetry snapshots and command outcomes to a
// local SQLite database for post-drive review.
package recorder
