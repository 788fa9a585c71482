// Package commands defines the veilchat CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init           Create the local identity
//   - fingerprint    Print the identity fingerprint
//   - register       Publish the username and public key to the directory
//   - peers          List peers currently online
//   - send           Encrypt and send one message over the relay
//   - recv           Stay connected to the relay and print incoming messages
//   - chat           Open a direct peer channel and chat interactively
//   - history        Print the stored conversation with a peer
//   - logout         Wipe the local identity
//
// # Implementation
//
// The root command builds the dependency graph (stores, directory client,
// logger) before any subcommand runs, so handlers share one wired app
// context.
package commands
