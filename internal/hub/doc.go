// Package hub stores hub metadata for the SlideBolt relay.
//
// A hub is one home's automation controller. Its row carries the secret
// hash checked at registration, the per-minute message limit, and the
// owner fields used by the claim resolver: the email an operator
// pre-assigns and the Alexa identity that claimed it.
//
// Claiming is a conditional write (owner_identity IS NULL), so when two
// identities race for the same hub exactly one wins.
package hub
