// Package vehicle owns the shared vehicle state: the canonical telemetry and
// the reference to the live link.
//
// Both sit behind one mutex. Writers (the link supervisor and the command
// executor) mutate through short critical sections; readers get deep-copied
// snapshots or a borrowed link reference.
package vehicle
