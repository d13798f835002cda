package model

import "time"

// ConnectionStatus indicates whether a mailbox connection is usable.
type ConnectionStatus string

// Connection status constants.
const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionRevoked ConnectionStatus = "revoked"
)

// MailboxConnection holds the credentials and sync bookkeeping for one
// connected mailbox. Tokens are stored encrypted. The embedded sync lock
// (SyncInProgress + SyncStartedAt) is the only shared mutable resource in
// the sync path; it is claimed with an atomic conditional update so that
// correctness holds across processes.
type MailboxConnection struct {
	TokenExpiresAt *time.Time
	LastSyncAt     *time.Time
	SyncStartedAt  *time.Time
	CreatedAt      time.Time
	ID             string
	UserID         string
	Provider       string
	AccessToken    string // encrypted
	RefreshToken   string // encrypted, may be empty
	Status         ConnectionStatus
	SyncInProgress bool
}
