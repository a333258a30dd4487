package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Small keyed JSON documents for per-monitor and fleet-wide run-state.
// Each monitor owns its own key, so concurrent writers never touch the
// same row; no further locking is needed.

// PutDoc marshals v and stores it under key, replacing any previous document.
func PutDoc(ctx context.Context, db *sql.DB, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal doc %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO state_docs (key, doc, updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET doc=EXCLUDED.doc, updated_at=NOW()`, key, string(raw))
	return err
}

// GetDoc unmarshals the document stored under key into out. The bool result
// reports whether a document existed; a missing document is not an error.
func GetDoc(ctx context.Context, db *sql.DB, key string, out any) (bool, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT doc FROM state_docs WHERE key=$1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("unmarshal doc %s: %w", key, err)
	}
	return true, nil
}

// DeleteDoc removes the document stored under key, if any.
func DeleteDoc(ctx context.Context, db *sql.DB, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM state_docs WHERE key=$1`, key)
	return err
}
