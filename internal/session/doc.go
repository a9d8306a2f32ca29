// Package session authenticates hubs on the push channel and tracks the
// one live connection each hub may hold.
//
// Registration writes two rows with the same TTL: the connection row keyed
// by hub (last registration wins) and the session row keyed by connection
// handle, which resolves every later message back to its hub in O(1).
// A hub whose connection was replaced keeps its old session row, but the
// bridge only ever forwards to the handle on file.
package session
