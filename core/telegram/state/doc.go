// Package state drives the per-user configuration conversation: a closed
// phase enum, phase-shaped payloads, and a store-backed manager that applies
// each update as one serialized read-modify-write per user.
package state
