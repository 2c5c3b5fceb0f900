// Package command implements the command executor for the vehicle bridge.
//
// The executor validates subscriber requests, runs the matching link
// primitive against the live link under a deadline, translates failures into
// "<Kind>: <detail>" results and writes an audit record for every execution.
package command
