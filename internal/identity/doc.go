// Package identity maps voice-assistant identities to hubs and stores the
// identity's Login-with-Amazon tokens.
//
// An identity is mapped at most once. The first mapping comes from the
// claim flow: the hub whose owner email matches the identity's profile
// email is claimed with a conditional write, so two identities racing for
// the same hub produce exactly one owner.
//
// Token-only rows (hub_id NULL) exist when AcceptGrant arrives before the
// identity was ever mapped.
package identity
