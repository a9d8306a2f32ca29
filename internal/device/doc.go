// Package device provides the Device Registry for the SlideBolt relay.
//
// Every device row belongs to exactly one hub and is addressed by
// (hub id, endpoint id). The endpoint descriptor is opaque to the relay
// and forwarded to Alexa verbatim; the state is a list of Alexa property
// records stored as compact JSON.
//
// # Lifecycle
//
//	new ──MarkActive──▶ active ──MarkDeleted──▶ deleted ──HardPurge──▶ (row removed)
//	 │                                           │
//	 └───────────────MarkDeleted─────────────────┘
//	                  deleted ──MarkActive (re-discovery)──▶ active
//
// Deletion is two-phase: MarkDeleted keeps the row visible so the Alexa
// DeleteReport and the hub's own cleanup can observe it, and HardPurge
// only ever removes rows already marked deleted. Delete is the explicit
// single-device hard removal.
//
// # Concurrency
//
// The Registry holds no in-process state. Concurrent writers for the same
// hub converge through SQLite's per-row upserts.
package device
