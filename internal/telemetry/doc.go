// Package telemetry holds the canonical vehicle telemetry and the rules that
// fold decoded MAVLink messages into it.
//
// State is plain data with no locking of its own; the vehicle package owns the
// single mutex that guards it together with the live link. Readers receive a
// Snapshot, a deep copy in physical units (volts, amps, percent, meters,
// degrees, m/s) with the heartbeat age derived at read time.
//
// The errors, warnings and statustext logs are bounded to LogCapacity entries
// each, evicting the oldest entry first.
package telemetry
