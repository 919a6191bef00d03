package domain

import (
	"errors"
	"fmt"
)

// Taxonomía de errores del core. Todas son recuperables salvo ErrPersistence,
// que aborta la operación en curso.
var (
	// ErrValidation: violación de un límite de riesgo o de una precondición. Sin mutación.
	ErrValidation = errors.New("validation error")
	// ErrTransition: cambio de estado ilegal.
	ErrTransition = errors.New("transition error")
	// ErrNotFound: el id referenciado no existe.
	ErrNotFound = errors.New("not found")
	// ErrConcurrency: lectura obsoleta detectada al escribir. El caller debe releer y reintentar.
	ErrConcurrency = errors.New("concurrency error")
	// ErrPersistence: el store subyacente no está disponible.
	ErrPersistence = errors.New("persistence error")
)

// Mensajes estables que los agentes pueden comparar.
const (
	MsgSingleMarketLimit     = "exceeds single-market limit"
	MsgPositionLimit         = "position limit reached"
	MsgCashReserve           = "breaches cash reserve"
	MsgInsufficientValidated = "insufficient validation for trade size"
	MsgIllegalTransition     = "illegal transition"
	MsgPreconditionNotMet    = "precondition not met"
)

// Validationf devuelve un error de validación con mensaje legible.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf devuelve un error NotFound para la entidad e id dados.
func NotFoundf(entity, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
}

// Transitionf devuelve un error de transición.
func Transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransition, fmt.Sprintf(format, args...))
}

// Persistence envuelve un fallo del store.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// Kind devuelve el nombre de la categoría del error para el protocolo de tools.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrTransition):
		return "TransitionError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrConcurrency):
		return "ConcurrencyError"
	case errors.Is(err, ErrPersistence):
		return "PersistenceError"
	default:
		return "InternalError"
	}
}
