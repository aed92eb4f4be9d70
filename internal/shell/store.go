package shell

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kimberlite-db/kimberlite/internal/ids"
)

//go:embed schema.sql
var schemaSQL string

// Store is the shell's durable side-table store: checkpoints, the client
// session table, and the audit log (spec §4.5's durable-shell
// responsibilities). It never stores row data or the log itself — those
// live in internal/wal — only the metadata the shell needs to recover
// without replaying the entire log from op 0 every restart.
//
// Grounded directly on the teacher's internal/store.Store: SQLite opened
// in WAL mode with a single writer connection, pragmas applied once at
// Open, schema created idempotently via go:embed.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path, applying the shell's
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("shell: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("shell: connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("shell: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("shell: apply pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutCheckpoint persists a state-hash checkpoint at opNumber.
func (s *Store) PutCheckpoint(ctx context.Context, op ids.OpNumber, view ids.ViewNumber, stateHash [32]byte, createdAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (op_number, view_number, state_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(op_number) DO UPDATE SET view_number = excluded.view_number,
			state_hash = excluded.state_hash, created_at = excluded.created_at
	`, uint64(op), uint64(view), stateHash[:], createdAt)
	if err != nil {
		return fmt.Errorf("shell: put checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the highest-op checkpoint recorded, if any.
func (s *Store) LatestCheckpoint(ctx context.Context) (op ids.OpNumber, view ids.ViewNumber, stateHash [32]byte, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT op_number, view_number, state_hash FROM checkpoints
		ORDER BY op_number DESC LIMIT 1
	`)
	var opRaw, viewRaw uint64
	var hashBlob []byte
	if scanErr := row.Scan(&opRaw, &viewRaw, &hashBlob); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, 0, [32]byte{}, false, nil
		}
		return 0, 0, [32]byte{}, false, fmt.Errorf("shell: latest checkpoint: %w", scanErr)
	}
	copy(stateHash[:], hashBlob)
	return ids.OpNumber(opRaw), ids.ViewNumber(viewRaw), stateHash, true, nil
}

// PutSession persists the at-most-once cached result for client.
func (s *Store) PutSession(ctx context.Context, client ids.ClientId, request ids.RequestId, effects []byte, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (client_id, request_id, effects_blob, error_message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET request_id = excluded.request_id,
			effects_blob = excluded.effects_blob, error_message = excluded.error_message
		WHERE excluded.request_id > sessions.request_id
	`, uint64(client), uint64(request), effects, errMsg)
	if err != nil {
		return fmt.Errorf("shell: put session: %w", err)
	}
	return nil
}

// LoadSessions returns every persisted session row, used to rebuild the
// in-memory vsr.SessionTable after a restart.
func (s *Store) LoadSessions(ctx context.Context) (map[ids.ClientId]struct {
	RequestID ids.RequestId
	Effects   []byte
	Err       string
}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client_id, request_id, effects_blob, error_message FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("shell: load sessions: %w", err)
	}
	defer rows.Close()

	out := map[ids.ClientId]struct {
		RequestID ids.RequestId
		Effects   []byte
		Err       string
	}{}
	for rows.Next() {
		var clientRaw, requestRaw uint64
		var effects []byte
		var errMsg string
		if err := rows.Scan(&clientRaw, &requestRaw, &effects, &errMsg); err != nil {
			return nil, fmt.Errorf("shell: scan session row: %w", err)
		}
		out[ids.ClientId(clientRaw)] = struct {
			RequestID ids.RequestId
			Effects   []byte
			Err       string
		}{RequestID: ids.RequestId(requestRaw), Effects: effects, Err: errMsg}
	}
	return out, rows.Err()
}

// AppendAudit records one audit event for op.
func (s *Store) AppendAudit(ctx context.Context, op ids.OpNumber, eventKind string, details map[string]string, createdAt int64) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("shell: marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (op_number, event_kind, details_json, created_at)
		VALUES (?, ?, ?, ?)
	`, uint64(op), eventKind, string(detailsJSON), createdAt)
	if err != nil {
		return fmt.Errorf("shell: append audit: %w", err)
	}
	return nil
}
