// Package directory implements the client for the external directory and
// signaling collaborator: username registration, public-key resolution,
// online presence, and relaying of peer-channel setup messages.
package directory
