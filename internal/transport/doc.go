// Package transport implements the connection/session state machine with its
// two channel variants: a direct peer channel negotiated via signaling, and a
// relayed channel through the central forwarding service. Both deliver opaque
// encrypted envelopes; neither ever sees plaintext.
package transport
