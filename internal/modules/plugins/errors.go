package plugins

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDocument is returned by ImportConfig when the document has no config object.
var ErrInvalidDocument = errors.New("Format de configuration invalide")

// ValidationError aggregates every violation found in a plugin.
// Messages are user-facing and shown verbatim in the admin form.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "Plugin invalide: " + strings.Join(e.Errors, ", ")
}

// NotFoundError is returned by update, delete and performance tests on an unknown id.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Plugin %s non trouvé", e.ID)
}

// DuplicateError is returned when registering an id that already exists in its kind.
type DuplicateError struct {
	Kind Kind
	ID   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("Plugin avec ID %s existe déjà", e.ID)
}

// UnknownKindError is returned for a kind outside indicator/formula/regime.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("Type de plugin inconnu: %s", e.Kind)
}

// EvaluationError wraps a failure of a compute function (calculate, evaluate, detect).
type EvaluationError struct {
	PluginID string
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("Erreur évaluation %s: %v", e.PluginID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is (or wraps) a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsDuplicate reports whether err is (or wraps) a *DuplicateError.
func IsDuplicate(err error) bool {
	var target *DuplicateError
	return errors.As(err, &target)
}

// IsUnknownKind reports whether err is (or wraps) an *UnknownKindError.
func IsUnknownKind(err error) bool {
	var target *UnknownKindError
	return errors.As(err, &target)
}
