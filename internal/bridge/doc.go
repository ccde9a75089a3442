// Package bridge provisions one hidden relay context per remote origin and
// authenticates the relay's OPEN_TUNNEL self-registration against the
// registry.
//
// A provisioning attempt is memoized per domain for the life of the
// Provisioner: failures (self bridge, name collision, load failure, handshake
// timeout) stick until DestroyBridges clears them.
package bridge
