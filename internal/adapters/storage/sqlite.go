package storage

// sqlite.go — documentos versionados sobre SQLite.
//
// Estrategia:
//   - `documents`: UNA fila por clave (portfolio, hypotheses, handoffs) con su versión.
//     Put es un compare-and-swap: UPDATE ... WHERE version = ?. Cero filas afectadas
//     significa lectura obsoleta → domain.ErrConcurrency.
//   - `document_revisions`: cada versión escrita queda registrada (append-only) para
//     auditar cómo evolucionó el portfolio. Prune automático al arrancar (> 90d).

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    key        TEXT PRIMARY KEY,
    version    INTEGER  NOT NULL,
    body       BLOB     NOT NULL,
    updated_at TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS document_revisions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    key        TEXT     NOT NULL,
    version    INTEGER  NOT NULL,
    body       BLOB     NOT NULL,
    written_at TEXT     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revisions_key ON document_revisions(key, version DESC);
`

const retentionRevisions = 90 * 24 * time.Hour

// Revision es una versión histórica de un documento.
type Revision struct {
	Key       string
	Version   int64
	Body      []byte
	WrittenAt time.Time
}

// SQLiteStore implementa ports.DocumentStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.DocumentStore = (*SQLiteStore)(nil)

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Get devuelve el documento actual de key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (ports.Document, error) {
	var doc ports.Document
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT key, version, body, updated_at FROM documents WHERE key = ?`, key,
	).Scan(&doc.Key, &doc.Version, &doc.Body, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Document{}, domain.NotFoundf("document", key)
	}
	if err != nil {
		return ports.Document{}, domain.Persistence("storage.SQLiteStore.Get", err)
	}
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return doc, nil
}

// Put reemplaza el documento si la versión guardada es expectedVersion.
// El documento y su revisión se escriben en la misma transacción.
func (s *SQLiteStore) Put(ctx context.Context, key string, body []byte, expectedVersion int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.Persistence("storage.SQLiteStore.Put: begin tx", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if expectedVersion == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO documents (key, version, body, updated_at) VALUES (?, 1, ?, ?)
			ON CONFLICT(key) DO NOTHING`, key, body, now)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE documents SET version = version + 1, body = ?, updated_at = ?
			WHERE key = ? AND version = ?`, body, now, key, expectedVersion)
	}
	if err != nil {
		return 0, domain.Persistence("storage.SQLiteStore.Put: write", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Persistence("storage.SQLiteStore.Put: rows affected", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s changed since version %d", domain.ErrConcurrency, key, expectedVersion)
	}

	next := expectedVersion + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_revisions (key, version, body, written_at) VALUES (?, ?, ?, ?)`,
		key, next, body, now,
	); err != nil {
		return 0, domain.Persistence("storage.SQLiteStore.Put: revision", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.Persistence("storage.SQLiteStore.Put: commit", err)
	}
	return next, nil
}

// History devuelve las últimas limit revisiones de key, la más reciente primero.
func (s *SQLiteStore) History(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, version, body, written_at FROM document_revisions
		WHERE key = ? ORDER BY version DESC LIMIT ?`, key, limit)
	if err != nil {
		return nil, domain.Persistence("storage.SQLiteStore.History: query", err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var r Revision
		var written string
		if err := rows.Scan(&r.Key, &r.Version, &r.Body, &written); err != nil {
			return nil, domain.Persistence("storage.SQLiteStore.History: scan", err)
		}
		r.WrittenAt, _ = time.Parse(time.RFC3339Nano, written)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// pruneOld elimina revisiones antiguas; el documento actual nunca se borra.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRevisions).Format(time.RFC3339Nano)
	s.db.ExecContext(ctx, `DELETE FROM document_revisions WHERE written_at < ?`, cutoff)
}
