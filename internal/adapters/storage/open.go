package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polydesk/internal/ports"
)

// Backends soportados.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selecciona y configura el backend de documentos.
type Options struct {
	Backend  string // file | sqlite | redis
	Dir      string // BackendFile
	DSN      string // BackendSQLite: ruta o ":memory:"
	RedisURL string // BackendRedis
}

// Open abre el backend indicado en opts.
func Open(ctx context.Context, opts Options) (ports.DocumentStore, error) {
	switch opts.Backend {
	case BackendFile, "":
		slog.Debug("storage: file backend", "dir", opts.Dir)
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		slog.Debug("storage: sqlite backend", "dsn", opts.DSN)
		return NewSQLiteStore(opts.DSN)
	case BackendRedis:
		slog.Debug("storage: redis backend")
		return NewRedisStore(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("storage.Open: unknown backend %q", opts.Backend)
	}
}
