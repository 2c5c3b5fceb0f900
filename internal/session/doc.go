// Package session serves subscriber sessions over a duplex message channel.
//
// Each session pushes a telemetry snapshot on a fixed cadence, accepts
// command messages, echoes each accepted command as a mav_out event and
// reports the executor's outcome as a command_result event. A session runs a
// publish loop, a receive loop and a single writer; when any of them stops
// the others are cancelled.
//
// The Hub tracks live sessions so they can be counted and stopped together on
// shutdown.
package session
