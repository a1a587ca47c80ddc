package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/multierr"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const historyDBName = "history.db"

// EncryptedHistory implements domain.SessionHistory using a SQLCipher
// encrypted SQLite database.
type EncryptedHistory struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedHistory opens (or creates) the encrypted history database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedHistory(dataDir string, key []byte) (*EncryptedHistory, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, historyDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	h := &EncryptedHistory{
		db:     db,
		dbPath: dbPath,
	}

	if err := h.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return h, nil
}

// OpenHistory opens the history in dataDir, creating its key on first use.
// When the stored key no longer opens the database, the pair is rotated and
// a fresh journal is started.
func OpenHistory(dataDir string) (*EncryptedHistory, error) {
	keys := NewHistoryKey(filepath.Join(dataDir, historyDBName))
	key, err := keys.Ensure()
	if err != nil {
		return nil, err
	}

	h, err := NewEncryptedHistory(dataDir, key)
	if err == nil {
		return h, nil
	}

	key, rotateErr := keys.Rotate()
	if rotateErr != nil {
		return nil, multierr.Append(err, rotateErr)
	}
	return NewEncryptedHistory(dataDir, key)
}

func (h *EncryptedHistory) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL DEFAULT 0,
		planned_seconds INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		websites TEXT NOT NULL DEFAULT '[]',
		apps TEXT NOT NULL DEFAULT '[]',
		teardown_error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions (started_at);
	`
	_, err := h.db.Exec(schema)
	return err
}

// RecordStart journals a newly activated session.
func (h *EncryptedHistory) RecordStart(session domain.Session) error {
	websites, apps, err := encodeTargets(session.Websites, session.Apps)
	if err != nil {
		return err
	}

	_, err = h.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, started_at, planned_seconds, websites, apps)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.StartedAt.Unix(), session.DurationSeconds, websites, apps,
	)
	return err
}

// RecordEnd completes the journal entry. A session that was never
// journaled at start is inserted whole.
func (h *EncryptedHistory) RecordEnd(record domain.SessionRecord) error {
	websites, apps, err := encodeTargets(record.Websites, record.Apps)
	if err != nil {
		return err
	}

	_, err = h.db.Exec(`
		INSERT INTO sessions (id, started_at, ended_at, planned_seconds, reason, websites, apps, teardown_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			reason = excluded.reason,
			teardown_error = excluded.teardown_error`,
		record.ID, record.StartedAt.Unix(), record.EndedAt.Unix(), record.PlannedSeconds,
		string(record.Reason), websites, apps, record.TeardownError,
	)
	return err
}

// List returns the most recent records, newest first.
func (h *EncryptedHistory) List(limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Query(`
		SELECT id, started_at, ended_at, planned_seconds, reason, websites, apps, teardown_error
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SessionRecord
	for rows.Next() {
		var (
			rec            domain.SessionRecord
			started, ended int64
			reason         string
			websites, apps string
		)
		if err := rows.Scan(&rec.ID, &started, &ended, &rec.PlannedSeconds, &reason,
			&websites, &apps, &rec.TeardownError); err != nil {
			return nil, err
		}
		rec.StartedAt = time.Unix(started, 0)
		if ended > 0 {
			rec.EndedAt = time.Unix(ended, 0)
		}
		rec.Reason = domain.StopReason(reason)
		if err := json.Unmarshal([]byte(websites), &rec.Websites); err != nil {
			return nil, fmt.Errorf("decode websites of %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(apps), &rec.Apps); err != nil {
			return nil, fmt.Errorf("decode apps of %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetHistoryPath returns the database file path.
func (h *EncryptedHistory) GetHistoryPath() string {
	return h.dbPath
}

// Close releases the database connection.
func (h *EncryptedHistory) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

func encodeTargets(websites, apps []string) (string, string, error) {
	if websites == nil {
		websites = []string{}
	}
	if apps == nil {
		apps = []string{}
	}
	w, err := json.Marshal(websites)
	if err != nil {
		return "", "", err
	}
	a, err := json.Marshal(apps)
	if err != nil {
		return "", "", err
	}
	return string(w), string(a), nil
}

// Ensure EncryptedHistory implements domain.SessionHistory.
var _ domain.SessionHistory = (*EncryptedHistory)(nil)
