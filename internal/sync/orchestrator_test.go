package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/subwatch/internal/classifier"
	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/extract"
	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/joshsymonds/subwatch/internal/secrets"
	"github.com/joshsymonds/subwatch/internal/service"
	"github.com/joshsymonds/subwatch/internal/testutil"
)

var testKey = make([]byte, secrets.KeySize)

// fakeMailbox serves canned messages and records which bodies were fetched.
type fakeMailbox struct {
	messages    map[string]*model.RawMessage
	order       []string
	listErr     error
	metadataErr map[string]error
	fullFetched []string
}

func (m *fakeMailbox) ListMessageIDs(_ context.Context, _, pageToken string) ([]string, string, error) {
	if m.listErr != nil {
		return nil, "", m.listErr
	}
	if pageToken != "" {
		return nil, "", fmt.Errorf("unexpected page token %q", pageToken)
	}
	return m.order, "", nil
}

func (m *fakeMailbox) GetMessageMetadata(_ context.Context, id string) (*model.MessageHeader, error) {
	if err := m.metadataErr[id]; err != nil {
		return nil, err
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &model.MessageHeader{ID: msg.ID, From: msg.From, Subject: msg.Subject, Date: msg.Date}, nil
}

func (m *fakeMailbox) GetMessageFull(_ context.Context, id string) (*model.RawMessage, error) {
	m.fullFetched = append(m.fullFetched, id)
	msg, ok := m.messages[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return msg, nil
}

// fakeRefresher hands out a fixed new token or a fixed error.
type fakeRefresher struct {
	err       error
	access    string
	refresh   string
	expires   time.Time
	refreshed int
}

func (r *fakeRefresher) Refresh(_ context.Context, _ string) (string, string, time.Time, error) {
	r.refreshed++
	if r.err != nil {
		return "", "", time.Time{}, r.err
	}
	return r.access, r.refresh, r.expires, nil
}

type fixture struct {
	db        *testutil.TestDB
	box       *secrets.Box
	mailbox   *fakeMailbox
	refresher *fakeRefresher
	orch      *Orchestrator
	tokens    []string // access tokens the mailbox factory observed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	box, err := secrets.NewBox(testKey)
	require.NoError(t, err)

	gate, err := classifier.New(classifier.DefaultTables())
	require.NoError(t, err)

	f := &fixture{
		db:        testutil.SetupTestDB(t),
		box:       box,
		mailbox:   &fakeMailbox{messages: map[string]*model.RawMessage{}, metadataErr: map[string]error{}},
		refresher: &fakeRefresher{},
	}
	newMailbox := func(_ context.Context, accessToken string) (service.Mailbox, error) {
		f.tokens = append(f.tokens, accessToken)
		return f.mailbox, nil
	}
	f.orch = NewOrchestrator(f.db.Storage, f.refresher, newMailbox, box, gate, extract.NewParser(), DefaultConfig())
	return f
}

func (f *fixture) encrypt(t *testing.T, plaintext string) string {
	t.Helper()
	enc, err := f.box.Encrypt(plaintext)
	require.NoError(t, err)
	return enc
}

func (f *fixture) addMessage(msg *model.RawMessage) {
	f.mailbox.messages[msg.ID] = msg
	f.mailbox.order = append(f.mailbox.order, msg.ID)
}

func validToken() *time.Time {
	t := time.Now().Add(time.Hour)
	return &t
}

func netflixReceipt(id string) *model.RawMessage {
	return &model.RawMessage{
		ID:      id,
		From:    "Netflix <info@netflix.com>",
		Subject: "Your Netflix receipt",
		Date:    time.Now().AddDate(0, 0, -2),
		Body:    "Your monthly subscription of $15.49 was charged.",
	}
}

func TestOrchestrator_Sync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.SeedConnection("user-1", f.encrypt(t, "access-1"), f.encrypt(t, "refresh-1"), validToken())
	f.db.MarkProcessed("user-1", service.ProcessedMessage{MessageID: "m0", VendorKey: "netflix"})

	f.addMessage(netflixReceipt("m0"))
	f.addMessage(netflixReceipt("m1"))
	f.addMessage(&model.RawMessage{
		ID:      "m2",
		From:    "GitHub <alerts@github.com>",
		Subject: "Your receipt from GitHub",
		Date:    time.Now().AddDate(0, 0, -1),
		Body:    "billing details",
	})

	result, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)

	assert.Equal(t, service.SyncCompleted, result.Status)
	assert.False(t, result.IsIncremental)
	assert.Equal(t, 1, result.EmailsProcessed)
	assert.Equal(t, 1, result.EmailsSkipped)
	assert.Equal(t, 1, result.SubscriptionsFound)
	assert.Equal(t, 1, result.NewSubscriptions)
	assert.Equal(t, 0, result.UpdatedSubscriptions)

	// Only the fresh gate-passing message got a full fetch.
	assert.Equal(t, []string{"m1"}, f.mailbox.fullFetched)

	// The factory received the decrypted access token.
	require.NotEmpty(t, f.tokens)
	assert.Equal(t, "access-1", f.tokens[0])

	sub, err := f.db.Storage.GetSubscriptionByVendor(ctx, "user-1", "netflix")
	require.NoError(t, err)
	assert.Equal(t, "Netflix", sub.VendorName)
	require.NotNil(t, sub.AmountCents)
	assert.Equal(t, int64(1549), *sub.AmountCents)

	// Lock released, last sync recorded.
	conn, err := f.db.Storage.GetConnection(ctx, "user-1", "gmail")
	require.NoError(t, err)
	assert.False(t, conn.SyncInProgress)
	require.NotNil(t, conn.LastSyncAt)
}

func TestOrchestrator_ConsecutiveSyncSkipsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.SeedConnection("user-1", f.encrypt(t, "access-1"), f.encrypt(t, "refresh-1"), validToken())
	f.addMessage(netflixReceipt("m1"))

	first, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, first.EmailsProcessed)

	second, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)

	assert.True(t, second.IsIncremental)
	assert.Equal(t, 0, second.EmailsProcessed)
	assert.Equal(t, first.EmailsProcessed, second.EmailsSkipped)
	assert.Equal(t, 0, second.NewSubscriptions)
}

func TestOrchestrator_SecondChargeUpdatesInstead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.SeedConnection("user-1", f.encrypt(t, "access-1"), f.encrypt(t, "refresh-1"), validToken())
	f.addMessage(netflixReceipt("m1"))

	_, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)

	f.addMessage(netflixReceipt("m2"))
	result, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.NewSubscriptions)
	assert.Equal(t, 1, result.UpdatedSubscriptions)
}

func TestOrchestrator_LockedConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn := f.db.SeedConnection("user-1", f.encrypt(t, "access-1"), "", validToken())

	acquired, err := f.db.Storage.AcquireSyncLock(ctx, conn.ID, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	result, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)

	assert.Equal(t, service.SyncLocked, result.Status)
	assert.Zero(t, result.EmailsProcessed)
	assert.Zero(t, result.NewSubscriptions)

	// A losing run must not release someone else's lock.
	stillLocked, err := f.db.Storage.AcquireSyncLock(ctx, conn.ID, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, stillLocked)
}

func TestOrchestrator_RefreshesExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	f.db.SeedConnection("user-1", f.encrypt(t, "stale-access"), f.encrypt(t, "refresh-1"), &expired)
	f.refresher.access = "fresh-access"
	f.refresher.refresh = "fresh-refresh"
	f.refresher.expires = time.Now().Add(time.Hour)

	f.addMessage(netflixReceipt("m1"))

	_, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.refresher.refreshed)
	require.NotEmpty(t, f.tokens)
	assert.Equal(t, "fresh-access", f.tokens[0])

	// Refreshed credentials were persisted encrypted.
	conn, err := f.db.Storage.GetConnection(ctx, "user-1", "gmail")
	require.NoError(t, err)
	access, err := f.box.Decrypt(conn.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", access)
	refresh, err := f.box.Decrypt(conn.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh-refresh", refresh)
}

func TestOrchestrator_ReconnectRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	f.db.SeedConnection("user-1", f.encrypt(t, "stale-access"), f.encrypt(t, "refresh-1"), &expired)
	f.refresher.err = fmt.Errorf("refreshing: %w", common.ErrReconnectRequired)

	_, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrReconnectRequired))

	// The connection was marked revoked; active lookups no longer see it.
	_, err = f.db.Storage.GetConnection(ctx, "user-1", "gmail")
	assert.ErrorIs(t, err, common.ErrNoConnection)
}

func TestOrchestrator_ExpiredTokenWithoutRefreshToken(t *testing.T) {
	f := newFixture(t)

	expired := time.Now().Add(-time.Hour)
	f.db.SeedConnection("user-1", f.encrypt(t, "stale-access"), "", &expired)

	_, err := f.orch.Sync(context.Background(), "user-1", service.SyncRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrReconnectRequired))
}

func TestOrchestrator_PartialOnFetchErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.SeedConnection("user-1", f.encrypt(t, "access-1"), f.encrypt(t, "refresh-1"), validToken())
	f.addMessage(netflixReceipt("m1"))
	f.addMessage(netflixReceipt("m2"))
	f.mailbox.metadataErr["m2"] = fmt.Errorf("transient backend error")

	result, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	require.NoError(t, err)

	assert.Equal(t, service.SyncPartial, result.Status)
	assert.Contains(t, result.Message, "1 messages")
	assert.Equal(t, 1, result.EmailsProcessed)

	// The failed message is not marked processed, so a later run retries it.
	processed, err := f.db.Storage.ProcessedMessageIDs(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, processed["m2"])
}

func TestOrchestrator_FailedScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.SeedConnection("user-1", f.encrypt(t, "access-1"), f.encrypt(t, "refresh-1"), validToken())
	f.mailbox.listErr = &common.RetryableError{Err: fmt.Errorf("mailbox unavailable"), Retryable: false}

	result, err := f.orch.Sync(ctx, "user-1", service.SyncRequest{})
	assert.ErrorIs(t, err, common.ErrSyncFailed)

	require.NotNil(t, result)
	assert.Equal(t, service.SyncFailed, result.Status)
	assert.Contains(t, result.Message, "mailbox unavailable")
	assert.Equal(t, 0, result.EmailsProcessed)

	// The lock is still released on the failure path.
	conn, connErr := f.db.Storage.GetConnection(ctx, "user-1", "gmail")
	require.NoError(t, connErr)
	assert.False(t, conn.SyncInProgress)
}

func TestOrchestrator_NoConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Sync(context.Background(), "user-1", service.SyncRequest{})
	assert.ErrorIs(t, err, common.ErrNoConnection)
}

func TestOrchestrator_SyncWindow(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	f.orch.now = func() time.Time { return now }

	lastSync := now.AddDate(0, 0, -3)

	tests := []struct {
		name            string
		conn            *model.MailboxConnection
		req             service.SyncRequest
		wantFrom        time.Time
		wantIncremental bool
	}{
		{
			name:            "incremental resumes from last sync",
			conn:            &model.MailboxConnection{LastSyncAt: &lastSync},
			req:             service.SyncRequest{DaysBack: 90},
			wantFrom:        lastSync,
			wantIncremental: true,
		},
		{
			name:     "force ignores last sync",
			conn:     &model.MailboxConnection{LastSyncAt: &lastSync},
			req:      service.SyncRequest{Force: true, DaysBack: 60},
			wantFrom: now.AddDate(0, 0, -60),
		},
		{
			name:     "first sync clamps small windows up",
			conn:     &model.MailboxConnection{},
			req:      service.SyncRequest{DaysBack: 5},
			wantFrom: now.AddDate(0, 0, -30),
		},
		{
			name:     "large requests cap at the lookback limit",
			conn:     &model.MailboxConnection{},
			req:      service.SyncRequest{DaysBack: 365},
			wantFrom: now.AddDate(0, 0, -90),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, incremental := f.orch.syncWindow(tt.conn, tt.req)
			assert.True(t, tt.wantFrom.Equal(from))
			assert.Equal(t, tt.wantIncremental, incremental)
		})
	}
}
