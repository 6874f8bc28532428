package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (duplicado, constraint violation).
	ErrConflict = errors.New("conflict")

	// ErrConsumed indica que un authorization code ya fue canjeado.
	ErrConsumed = errors.New("already consumed")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indica que el backend no responde.
	ErrUnavailable = errors.New("store unavailable")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsConsumed verifica si el error es ErrConsumed.
func IsConsumed(err error) bool {
	return errors.Is(err, ErrConsumed)
}
