package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrNotFound, "no such key")
	assert.Equal(t, "[NOT_FOUND] no such key", err.Error())

	cause := errors.New("connection refused")
	err = NewStoreUnavailable(cause)
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestErrorCodeExtraction(t *testing.T) {
	err := NewDuplicateKey("cpa_level_amounts")
	assert.Equal(t, ErrDuplicateKey, GetErrorCode(err))
	assert.True(t, IsCode(err, ErrDuplicateKey))

	wrapped := fmt.Errorf("create failed: %w", err)
	assert.Equal(t, ErrDuplicateKey, GetErrorCode(wrapped))

	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewStoreUnavailable(errors.New("timeout"))))
	assert.False(t, IsRetryable(NewNotFound("missing_key")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestValidationFailedFields(t *testing.T) {
	err := NewValidationFailed([]FieldError{{Path: "x", Message: "must be >= 0"}})
	assert.Equal(t, ErrValidationFailed, err.Code)
	assert.Len(t, err.Fields, 1)
	assert.Equal(t, "x", err.Fields[0].Path)
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("cpa_level_amounts"))
	assert.True(t, ValidKey("abc"))
	assert.False(t, ValidKey("ab"))
	assert.False(t, ValidKey("UPPER_CASE"))
	assert.False(t, ValidKey("has-dash"))
	assert.False(t, ValidKey(""))
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(KindCPA))
	assert.True(t, ValidKind(KindSecurity))
	assert.False(t, ValidKind(ConfigKind("billing")))
}

func TestAppendHistoryBound(t *testing.T) {
	entry := &ConfigEntry{}
	for i := 0; i < MaxHistoryEntries+7; i++ {
		entry.AppendHistory(ChangeEvent{Action: ActionUpdate, NewValue: i})
	}
	assert.Len(t, entry.ChangeHistory, MaxHistoryEntries)
	// Oldest events dropped first: the newest entry is the last appended.
	assert.Equal(t, MaxHistoryEntries+6, entry.ChangeHistory[MaxHistoryEntries-1].NewValue)
}
