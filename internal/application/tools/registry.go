// Package tools expone las operaciones del core como tools con nombre que el
// agente de razonamiento invoca con argumentos JSON. Cada llamada devuelve
// un sobre {ok, result, error}; solo los errores de persistencia abortan.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/metrics"
)

// Handler ejecuta un tool con sus argumentos crudos.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool es una operación registrada.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	handler     Handler
}

// ErrorBody es el error estructurado del sobre.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Envelope es la respuesta de cada llamada.
type Envelope struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// Registry indexa los tools por nombre.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry crea un registro vacío.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register agrega un tool. Registrar dos veces el mismo nombre es un bug.
func (r *Registry) Register(name, description string, h Handler) {
	if _, dup := r.tools[name]; dup {
		panic("tools: duplicate tool " + name)
	}
	r.tools[name] = Tool{Name: name, Description: description, handler: h}
}

// List devuelve los tools ordenados por nombre.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invoca name con args. Devuelve error solo cuando la operación debe
// abortarse (persistencia); el resto se reporta dentro del sobre.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (Envelope, error) {
	t, ok := r.tools[name]
	if !ok {
		err := domain.NotFoundf("tool", name)
		metrics.ToolCalls.WithLabelValues("unknown", domain.Kind(err)).Inc()
		return failure(nil, err), nil
	}

	res, err := t.handler(ctx, args)
	kind := domain.Kind(err)
	metrics.ToolCalls.WithLabelValues(name, kind).Inc()

	if err == nil {
		return Envelope{OK: true, Result: res}, nil
	}
	if errors.Is(err, domain.ErrPersistence) {
		slog.Error("tool aborted", "tool", name, "err", err)
		return failure(nil, err), err
	}
	slog.Warn("tool failed", "tool", name, "kind", kind, "err", err)
	return failure(res, err), nil
}

func failure(res any, err error) Envelope {
	return Envelope{OK: false, Result: res, Error: &ErrorBody{Kind: domain.Kind(err), Message: err.Error()}}
}

// decode parsea args en dst rechazando campos desconocidos. Args vacíos o
// null equivalen a {}.
func decode(args json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid arguments: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Validationf("invalid arguments: trailing data")
	}
	return nil
}

// typed adapta una función con argumentos tipados a Handler.
func typed[A any](fn func(ctx context.Context, args A) (any, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a A
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

func required(field, value string) error {
	if value == "" {
		return domain.Validationf("%s is required", field)
	}
	return nil
}
