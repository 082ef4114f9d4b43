package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "not_found: rail guard not found", ErrRailGuardNotFound.Error())
	assert.Equal(t,
		"validation: invalid vote (threshold must be at least 1)",
		ErrInvalidVote.Wrap(errors.New("threshold must be at least 1")).Error())
}

func TestDomainError_Wrap(t *testing.T) {
	cause := errors.New("no rows")
	err := ErrQuorumDecisionNotFound.Wrap(cause)

	assert.NotSame(t, ErrQuorumDecisionNotFound, err)
	assert.Nil(t, ErrQuorumDecisionNotFound.Err, "the sentinel keeps no cause")
	assert.ErrorIs(t, err, ErrQuorumDecisionNotFound)
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("vote: %w", err)
	assert.ErrorIs(t, wrapped, ErrQuorumDecisionNotFound)
	assert.True(t, IsNotFoundError(wrapped))
}

func TestDomainError_IsMatchesByType(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same sentinel", ErrInvalidVote, ErrInvalidVote, true},
		{"same type other sentinel", ErrInvalidRewardEvent, ErrInvalidVote, true},
		{"different type", ErrCycleInProgress, ErrInvalidVote, false},
		{"plain error target", ErrCycleInProgress, errors.New("conflict"), false},
		{"wrapped copy", ErrGuardStoreUnavailable.Wrap(errors.New("redis down")), ErrGuardStoreUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := ErrCycleInProgress.Wrap(nil).
		WithDetail("cycle", 3).
		WithDetail("started_by", "scheduler")

	assert.Equal(t, map[string]interface{}{"cycle": 3, "started_by": "scheduler"}, GetErrorDetails(err))
	assert.Nil(t, ErrCycleInProgress.Details)
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{ErrPolicyRuleNotFound, ErrorTypeNotFound},
		{ErrRewardEventNotFound, ErrorTypeNotFound},
		{ErrInvalidInput, ErrorTypeValidation},
		{ErrInvalidRailGuard, ErrorTypeValidation},
		{ErrPolicyDocumentInvalid, ErrorTypeValidation},
		{ErrCycleInProgress, ErrorTypeConflict},
		{ErrGuardStoreUnavailable, ErrorTypeUnavailable},
		{NewDomainError(ErrorTypeInternal, "ledger write failed", nil), ErrorTypeInternal},
	}

	classifiers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:    IsNotFoundError,
		ErrorTypeValidation:  IsValidationError,
		ErrorTypeConflict:    IsConflictError,
		ErrorTypeUnavailable: IsUnavailableError,
		ErrorTypeInternal:    IsInternalError,
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, GetErrorType(tt.err))
			for typ, is := range classifiers {
				assert.Equal(t, typ == tt.want, is(tt.err), "classifier for %s", typ)
			}
		})
	}
}

func TestErrorHelpers_NonDomainError(t *testing.T) {
	err := errors.New("plain")

	assert.Equal(t, ErrorType(""), GetErrorType(err))
	assert.Nil(t, GetErrorDetails(err))
	assert.False(t, IsNotFoundError(err))
	assert.False(t, IsValidationError(nil))
}
