// Package db provides SurrealDB connectivity, schema, and the stable error
// taxonomy shared by repositories and services.
package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for errors.Is matching across layers.
var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("conflict")
	ErrReferentialIntegrity = errors.New("referential integrity")
	ErrQuery                = errors.New("query error")
	ErrDatabase             = errors.New("database error")
	ErrTransaction          = errors.New("transaction error")
)

// NotFoundError indicates an absent or filtered-out target.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.EntityType, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError indicates an input shape or domain violation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError indicates a duplicate or concurrent modification.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ReferentialIntegrityError indicates a delete blocked by live references.
type ReferentialIntegrityError struct {
	EntityType string
	ID         string
	Message    string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("cannot delete %s %q: %s", e.EntityType, e.ID, e.Message)
}

func (e *ReferentialIntegrityError) Unwrap() error { return ErrReferentialIntegrity }

// QueryError indicates a storage engine query failure.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string { return e.Message }

func (e *QueryError) Unwrap() error { return ErrQuery }

// DatabaseError indicates an infrastructure failure (connection, protocol).
type DatabaseError struct {
	Message string
}

func (e *DatabaseError) Error() string { return e.Message }

func (e *DatabaseError) Unwrap() error { return ErrDatabase }

// TransactionError indicates an aggregate write that partially failed.
type TransactionError struct {
	Message string
}

func (e *TransactionError) Error() string { return e.Message }

func (e *TransactionError) Unwrap() error { return ErrTransaction }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// wrapQueryError classifies a SurrealDB error into the taxonomy.
// Duplicate-index and THROW'd conflicts become ConflictError, everything
// else from the query layer becomes QueryError.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		switch {
		case strings.Contains(msg, "already exists"):
			return &ConflictError{Message: msg}
		case strings.Contains(msg, "Transaction conflict"):
			return &TransactionError{Message: msg}
		case strings.Contains(msg, "not found"):
			return &QueryError{Message: msg}
		default:
			return &QueryError{Message: msg}
		}
	}

	var rpcErr *surrealdb.RPCError
	if errors.As(err, &rpcErr) {
		return &DatabaseError{Message: rpcErr.Error()}
	}

	return &DatabaseError{Message: err.Error()}
}
