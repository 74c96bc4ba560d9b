// Package audit provides the append-only audit log for the gateway. Every
// authenticated API action lands here; records form a hash chain so
// after-the-fact edits are detectable.
package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFile is the audit database file under the state directory.
const DBFile = "stackgate-audit.db"

// EventType categorizes audit records.
type EventType string

const (
	EventAPICall       EventType = "api_call"
	EventAuthFailure   EventType = "auth_failure"
	EventPolicyDenied  EventType = "policy_denied"
	EventKeyAdded      EventType = "key_added"
	EventKeyRemoved    EventType = "key_removed"
	EventServerStarted EventType = "server_started"
	EventServerStopped EventType = "server_stopped"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    tenant          TEXT DEFAULT '',
    principal       TEXT NOT NULL DEFAULT '',
    action          TEXT DEFAULT '',
    request_id      TEXT DEFAULT '',
    event_type      TEXT NOT NULL,
    detail          TEXT DEFAULT '{}',
    record_hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_log(tenant);
`

// Open opens or creates the audit database under dir.
func Open(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	path := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}
	return db, nil
}

// Logger appends tamper-evident records.
type Logger struct {
	db       *sql.DB
	mu       sync.Mutex
	lastHash string
}

// NewLogger wires a logger to the audit database, recovering the hash chain
// tail so appends continue the existing chain.
func NewLogger(db *sql.DB) (*Logger, error) {
	l := &Logger{db: db}

	var lastHash sql.NullString
	err := db.QueryRow("SELECT record_hash FROM audit_log ORDER BY id DESC LIMIT 1").Scan(&lastHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("recovering audit chain: %w", err)
	}
	if lastHash.Valid {
		l.lastHash = lastHash.String
	}
	return l, nil
}

// Log appends one record. The hash chain covers timestamp, event type,
// principal, and detail.
func (l *Logger) Log(eventType EventType, tenant, principal, action, requestID string, detail any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	detailJSON, err := json.Marshal(detail)
	if err != nil {
		detailJSON = []byte(fmt.Sprintf(`{"error":"failed to marshal detail: %s"}`, err))
	}

	now := time.Now().UTC()
	recordHash := l.computeHash(now, eventType, principal, string(detailJSON))

	_, err = l.db.Exec(
		`INSERT INTO audit_log (timestamp, tenant, principal, action, request_id, event_type, detail, record_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		now.Format(time.RFC3339Nano),
		tenant,
		principal,
		action,
		requestID,
		string(eventType),
		string(detailJSON),
		recordHash,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	l.lastHash = recordHash
	return nil
}

// computeHash links the chain: SHA-256(previousHash + timestamp + eventType + principal + detail)
func (l *Logger) computeHash(ts time.Time, eventType EventType, principal, detail string) string {
	data := l.lastHash + ts.Format(time.RFC3339Nano) + string(eventType) + principal + detail
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Verify walks the whole chain and recomputes every link.
func Verify(db *sql.DB) (bool, int, error) {
	rows, err := db.Query("SELECT timestamp, event_type, principal, detail, record_hash FROM audit_log ORDER BY id ASC")
	if err != nil {
		return false, 0, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var previousHash string
	count := 0

	for rows.Next() {
		var ts, eventType, principal, detail, recordHash string
		if err := rows.Scan(&ts, &eventType, &principal, &detail, &recordHash); err != nil {
			return false, count, fmt.Errorf("scanning audit row: %w", err)
		}

		data := previousHash + ts + eventType + principal + detail
		h := sha256.Sum256([]byte(data))
		if hex.EncodeToString(h[:]) != recordHash {
			return false, count, fmt.Errorf("audit chain broken at record %d", count+1)
		}

		previousHash = recordHash
		count++
	}
	if err := rows.Err(); err != nil {
		return false, count, fmt.Errorf("reading audit rows: %w", err)
	}

	return true, count, nil
}

// Record is one audit row as read back for display.
type Record struct {
	ID        int64
	Timestamp string
	Tenant    string
	Principal string
	Action    string
	RequestID string
	EventType EventType
	Detail    string
}

// Recent returns the newest records, most recent first.
func Recent(db *sql.DB, limit int) ([]Record, error) {
	rows, err := db.Query(
		`SELECT id, timestamp, tenant, principal, action, request_id, event_type, detail
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var eventType string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Tenant, &r.Principal, &r.Action, &r.RequestID, &eventType, &r.Detail); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		r.EventType = EventType(eventType)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit rows: %w", err)
	}
	return out, nil
}
