// Package app wires stores, clients and configuration together for the CLI.
package app
