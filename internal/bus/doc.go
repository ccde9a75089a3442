// Package bus owns the message-bus contract shared by every crosslink component.
//
// Ownership boundary:
// - window handles and message envelopes
// - send/listen contract with wildcard domain matching
// - outbound routing registration (remote windows, remote send capabilities)
// - error categories
//
// The bus never trusts payload content for identity: Message.Origin is the
// platform-level origin tag and is the only source of a verified domain.
package bus
