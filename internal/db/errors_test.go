package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		debug   bool
		status  int
		message string
	}{
		{
			name:    "not null names the column",
			err:     &pq.Error{Code: "23502", Column: "license_plate"},
			status:  http.StatusUnprocessableEntity,
			message: "Missing required field: license_plate",
		},
		{
			name:    "duplicate",
			err:     fmt.Errorf("insert vehicle: %w", &pq.Error{Code: "23505"}),
			status:  http.StatusConflict,
			message: "This record already exists",
		},
		{
			name:    "foreign key",
			err:     &pq.Error{Code: "23503"},
			status:  http.StatusConflict,
			message: "Invalid foreign key reference. Related record does not exist.",
		},
		{
			name:    "no rows",
			err:     sql.ErrNoRows,
			status:  http.StatusNotFound,
			message: "Record not found",
		},
		{
			name:    "other hidden",
			err:     errors.New("connection refused"),
			status:  http.StatusInternalServerError,
			message: "Database error occurred",
		},
		{
			name:    "other in debug",
			err:     errors.New("connection refused"),
			debug:   true,
			status:  http.StatusInternalServerError,
			message: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := Classify(tt.err, tt.debug)
			assert.Equal(t, tt.status, qe.Status)
			assert.Equal(t, tt.message, qe.Message)
			assert.ErrorIs(t, qe, tt.err)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
}
