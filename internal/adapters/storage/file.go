package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

var validKey = regexp.MustCompile(`^[a-z0-9_-]+$`)

// envelope es el formato en disco: la versión viaja con el cuerpo para que
// un solo rename reemplace ambos.
type envelope struct {
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Body      json.RawMessage `json:"body"`
}

// FileStore implementa ports.DocumentStore con un archivo JSON por clave.
// Cada Put escribe a un temporal, hace fsync y lo renombra sobre el destino,
// así un proceso interrumpido nunca deja un documento a medio escribir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ ports.DocumentStore = (*FileStore)(nil)

// NewFileStore crea el directorio si no existe.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage.NewFileStore: mkdir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get lee el documento de key.
func (s *FileStore) Get(_ context.Context, key string) (ports.Document, error) {
	if !validKey.MatchString(key) {
		return ports.Document{}, domain.Validationf("invalid document key %q", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read(key)
	if err != nil {
		return ports.Document{}, err
	}
	return ports.Document{Key: key, Version: env.Version, Body: env.Body, UpdatedAt: env.UpdatedAt}, nil
}

// Put compara la versión en disco con expectedVersion y reemplaza el archivo.
func (s *FileStore) Put(ctx context.Context, key string, body []byte, expectedVersion int64) (int64, error) {
	if !validKey.MatchString(key) {
		return 0, domain.Validationf("invalid document key %q", key)
	}
	if !json.Valid(body) {
		return 0, domain.Validationf("document %q body is not valid JSON", key)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	env, err := s.read(key)
	switch {
	case err == nil:
		current = env.Version
	case errors.Is(err, domain.ErrNotFound):
		current = 0
	default:
		return 0, err
	}
	if current != expectedVersion {
		return 0, fmt.Errorf("%w: %s is at version %d, expected %d",
			domain.ErrConcurrency, key, current, expectedVersion)
	}

	next := envelope{Version: current + 1, UpdatedAt: time.Now().UTC(), Body: body}
	data, err := json.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("storage.FileStore.Put: marshal envelope: %w", err)
	}
	if err := s.writeAtomic(key, data); err != nil {
		return 0, domain.Persistence("storage.FileStore.Put", err)
	}
	return next.Version, nil
}

// Close no tiene recursos que liberar.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read(key string) (envelope, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return envelope{}, domain.NotFoundf("document", key)
	}
	if err != nil {
		return envelope{}, domain.Persistence("storage.FileStore.read", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, domain.Persistence("storage.FileStore.read: decode "+key, err)
	}
	return env, nil
}

func (s *FileStore) writeAtomic(key string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op tras un rename exitoso

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
