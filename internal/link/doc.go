// Package link owns the connection to the vehicle autopilot.
//
// A Link wraps one MAVLink node bound to a single serial, UDP or TCP endpoint.
// Inbound frames are translated into the closed Message variant consumed by the
// telemetry normalizer, and outbound command primitives (arm, mode changes,
// RC overrides, raw COMMAND_LONG) are written back to the vehicle.
//
// All failures surface as *Error values carrying a normalized Kind so callers
// can report them without inspecting transport details.
package link
