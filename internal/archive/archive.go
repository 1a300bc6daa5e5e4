// Package archive keeps an optional on-disk log of every ingested message
// for offline inspection. The in-memory store never reads it back.
package archive

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"wmnmon/internal/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	received_at TEXT NOT NULL,
	kind TEXT NOT NULL,
	device_id TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_device ON messages(device_id, received_at);
`

// Archive is an append-only SQLite message log.
type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive database and ensures the schema.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Log appends one message. Failures are returned to the caller, which
// logs and moves on; archiving must never stall ingestion.
func (a *Archive) Log(msg telemetry.Message) error {
	_, err := a.db.Exec(
		"INSERT INTO messages (received_at, kind, device_id, payload) VALUES (?, ?, ?, ?)",
		msg.ReceivedAt.UTC().Format(time.RFC3339Nano), string(msg.Kind), msg.DeviceID, msg.Raw,
	)
	return err
}

// Count returns the number of archived messages for a device. Empty id
// counts everything.
func (a *Archive) Count(deviceID string) (int, error) {
	var n int
	var err error
	if deviceID == "" {
		err = a.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n)
	} else {
		err = a.db.QueryRow("SELECT COUNT(*) FROM messages WHERE device_id = ?", deviceID).Scan(&n)
	}
	return n, err
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}
