// Package model defines the core domain models used throughout the application.
package model

import "time"

// RawMessage represents a single mailbox record as fetched from the provider.
// It is immutable once fetched and held only for the duration of one sync pass.
type RawMessage struct {
	Date     time.Time
	ID       string
	ThreadID string
	From     string
	Subject  string
	Snippet  string
	Body     string // Plain-text, already base64-decoded
	Labels   []string
}

// MessageHeader is the cheap header-only view of a message, used by the
// billing gate before any full-body fetch.
type MessageHeader struct {
	Date    time.Time
	ID      string
	From    string
	Subject string
}
