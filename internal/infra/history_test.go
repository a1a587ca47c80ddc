package infra

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

// newTestHistory creates an encrypted history in a temp directory for testing.
func newTestHistory(t *testing.T) *EncryptedHistory {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)

	h, err := NewEncryptedHistory(t.TempDir(), key)
	require.NoError(t, err)

	t.Cleanup(func() { h.Close() })
	return h
}

func TestEncryptedHistory_StartThenEnd(t *testing.T) {
	h := newTestHistory(t)
	started := time.Now().Add(-time.Minute).Truncate(time.Second)

	session := domain.Session{
		ID:              "s-1",
		Status:          domain.StatusActive,
		Websites:        []string{"a.com", "b.com"},
		Apps:            []string{"steam"},
		DurationSeconds: 60,
		StartedAt:       started,
	}
	require.NoError(t, h.RecordStart(session))

	records, err := h.List(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Reason)
	assert.True(t, records[0].EndedAt.IsZero())

	ended := started.Add(time.Minute)
	require.NoError(t, h.RecordEnd(domain.SessionRecord{
		ID:             "s-1",
		StartedAt:      started,
		EndedAt:        ended,
		PlannedSeconds: 60,
		Reason:         domain.ReasonExpired,
		Websites:       session.Websites,
		Apps:           session.Apps,
	}))

	records, err = h.List(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "s-1", rec.ID)
	assert.Equal(t, domain.ReasonExpired, rec.Reason)
	assert.True(t, started.Equal(rec.StartedAt))
	assert.True(t, ended.Equal(rec.EndedAt))
	assert.Equal(t, 60, rec.PlannedSeconds)
	assert.Equal(t, []string{"a.com", "b.com"}, rec.Websites)
	assert.Equal(t, []string{"steam"}, rec.Apps)
	assert.Empty(t, rec.TeardownError)
}

func TestEncryptedHistory_EndWithoutStart(t *testing.T) {
	h := newTestHistory(t)
	now := time.Now().Truncate(time.Second)

	require.NoError(t, h.RecordEnd(domain.SessionRecord{
		ID:             "orphan",
		StartedAt:      now.Add(-time.Minute),
		EndedAt:        now,
		PlannedSeconds: 600,
		Reason:         domain.ReasonManual,
		TeardownError:  "write /etc/hosts: permission denied",
	}))

	records, err := h.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ReasonManual, records[0].Reason)
	assert.Equal(t, "write /etc/hosts: permission denied", records[0].TeardownError)
	assert.Empty(t, records[0].Websites)
}

func TestEncryptedHistory_ListNewestFirstWithLimit(t *testing.T) {
	h := newTestHistory(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, h.RecordStart(domain.Session{
			ID:              id,
			DurationSeconds: 60,
			StartedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := h.List(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].ID)
	assert.Equal(t, "second", records[1].ID)
}

func TestEncryptedHistory_WrongKeyCannotRead(t *testing.T) {
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	h, err := NewEncryptedHistory(dataDir, key)
	require.NoError(t, err)
	require.NoError(t, h.RecordStart(domain.Session{ID: "s", DurationSeconds: 60, StartedAt: time.Now()}))
	require.NoError(t, h.Close())

	otherKey, err := GenerateKey()
	require.NoError(t, err)
	_, err = NewEncryptedHistory(dataDir, otherKey)
	assert.Error(t, err)
}

func TestOpenHistory_CreatesKey(t *testing.T) {
	dataDir := t.TempDir()

	h, err := OpenHistory(dataDir)
	require.NoError(t, err)
	defer h.Close()

	assert.True(t, NewHistoryKey(h.GetHistoryPath()).KeyExists())
	assert.FileExists(t, h.GetHistoryPath())
}

func TestOpenHistory_ReopensWithStoredKey(t *testing.T) {
	dataDir := t.TempDir()

	h, err := OpenHistory(dataDir)
	require.NoError(t, err)
	require.NoError(t, h.RecordStart(domain.Session{ID: "kept", DurationSeconds: 60, StartedAt: time.Now()}))
	require.NoError(t, h.Close())

	h, err = OpenHistory(dataDir)
	require.NoError(t, err)
	defer h.Close()

	records, err := h.List(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].ID)
}

func TestOpenHistory_RotatesWhenKeyNoLongerMatches(t *testing.T) {
	dataDir := t.TempDir()

	h, err := OpenHistory(dataDir)
	require.NoError(t, err)
	require.NoError(t, h.RecordStart(domain.Session{ID: "old", DurationSeconds: 60, StartedAt: time.Now()}))
	dbPath := h.GetHistoryPath()
	require.NoError(t, h.Close())

	// Replace the key with one that does not open the database.
	other, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, NewHistoryKey(dbPath).StoreKey(other))

	h, err = OpenHistory(dataDir)
	require.NoError(t, err)
	defer h.Close()

	records, err := h.List(10)
	require.NoError(t, err)
	assert.Empty(t, records, "a fresh journal is started")

	aside, err := filepath.Glob(dbPath + ".2*")
	require.NoError(t, err)
	assert.Len(t, aside, 1, "the unreadable database is kept")
}
