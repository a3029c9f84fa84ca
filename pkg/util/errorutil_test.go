package util

import (
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoutingError_CodeAndStatus(t *testing.T) {
	err := NewRoutingError("both parties are agents", nil)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ROUTING_INVALID_PAIR", domainErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, domainErr.HTTPStatus)
}

func TestIsCode(t *testing.T) {
	err := NewConflict("concurrent ticket creation, retry", nil)

	assert.True(t, IsCode(err, "CONFLICT"))
	assert.False(t, IsCode(err, "NOT_FOUND"))
	assert.False(t, IsCode(errors.New("plain"), "CONFLICT"))
}

func TestToDomainError_MapsNoRowsToNotFound(t *testing.T) {
	domainErr := ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)

	wrapped := ToDomainError(errors.New("connection reset"))
	assert.Equal(t, "INTERNAL_ERROR", wrapped.Code)
	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus)
}

func TestToDomainError_PreservesDomainError(t *testing.T) {
	original := NewForbidden("access denied")
	domainErr := ToDomainError(original)
	assert.Equal(t, "FORBIDDEN", domainErr.Code)
}

func TestMapError_PassesNilThrough(t *testing.T) {
	assert.NoError(t, MapError(nil))
}
