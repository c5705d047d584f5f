// Package domain contains entity without logic, just meta-data
package domain

// UserID identifies an account of the persistent store. The relay never
// resolves it, it is carried through to persistence and to peers.
type UserID string
