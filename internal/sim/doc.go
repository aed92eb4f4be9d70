// Package sim is VOPR, Kimberlite's deterministic discrete-event
// simulator (spec §4.5). It drives a group of in-process vsr.Replica /
// shell.Shell instances from a single seed through a simulated clock,
// network, and disk, injecting faults and running invariant checkers
// after every event, so the same seed always produces the same
// (state_hash, storage_hash, events_processed, final_tick).
//
// Nothing in this package touches the wall clock, the process RNG, or
// the OS scheduler's nondeterminism: every source of randomness or time
// is threaded through explicitly from the scenario's seed.
package sim
