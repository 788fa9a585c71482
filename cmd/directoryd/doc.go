// Package main runs the in-memory directory and relay used by veilchat during
// development and tests. It stores published usernames and public keys, queues
// signaling messages for offline pickup, and routes encrypted envelopes
// between connected websocket clients.
//
// HTTP API
//
//	POST /api/register
//	    Store a username and its public key. 409 when the name is taken.
//
//	POST /api/check-username
//	    Report whether a username is still free.
//
//	POST /api/user/public-key
//	    Return the stored public key for a username. 404 when unknown.
//
//	GET /api/online-users
//	    List usernames currently known to the directory.
//
//	POST /api/webrtc/offer | answer | ice-candidate
//	    Enqueue one signaling message for the recipient.
//
//	GET /api/webrtc/pending-messages/{username}
//	    Drain and return the queued signaling messages for {username}.
//
//	GET /ws
//	    Upgrade to the relay websocket. The first frame must be a register.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - The relay assigns message ids and timestamps on forward.
//   - The relay never sees plaintext or private keys; envelopes pass through
//     as opaque ciphertext.
//   - The default listen address is :3001.
package main
