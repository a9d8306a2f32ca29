// Package auth provides hub credentials and admin authentication for the
// SlideBolt relay.
//
// Hub secrets are hashed with Argon2id in PHC string format. Hashes
// written by earlier provisioning tools (hex SHA-256) still verify, so
// existing hubs keep working after migration.
//
// The admin control plane uses short-lived HS256 JWTs carrying the admin
// role, issued in exchange for the configured admin secret.
package auth
