package db

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/lib/pq"
)

// SQLSTATE codes the API maps to client errors.
const (
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// QueryError is a database failure translated to an HTTP status and a
// client-facing message.
type QueryError struct {
	Status  int
	Message string
	Column  string
	Err     error
}

func (e *QueryError) Error() string { return e.Message }
func (e *QueryError) Unwrap() error { return e.Err }

// Classify maps a driver error onto the API's error contract. debug exposes
// the raw driver message for unclassified failures.
func Classify(err error, debug bool) *QueryError {
	if errors.Is(err, sql.ErrNoRows) {
		return &QueryError{Status: http.StatusNotFound, Message: "Record not found", Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeNotNullViolation:
			return &QueryError{
				Status:  http.StatusUnprocessableEntity,
				Message: "Missing required field: " + pqErr.Column,
				Column:  pqErr.Column,
				Err:     err,
			}
		case codeUniqueViolation:
			return &QueryError{Status: http.StatusConflict, Message: "This record already exists", Err: err}
		case codeForeignKeyViolation:
			return &QueryError{
				Status:  http.StatusConflict,
				Message: "Invalid foreign key reference. Related record does not exist.",
				Err:     err,
			}
		}
	}

	msg := "Database error occurred"
	if debug {
		msg = err.Error()
	}
	return &QueryError{Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// IsUniqueViolation reports whether err is a duplicate key error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation
}
