// Package domain declares the core data model, error taxonomy, wire formats
// and collaborator interfaces shared by every other package.
package domain
