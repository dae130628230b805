package processing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrProviderBusy))
	assert.True(t, IsTransient(fmt.Errorf("create job: %w", ErrProviderBusy)))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.False(t, IsTransient(nil))
}

func TestProviderError(t *testing.T) {
	busy := NewProviderError("inference", "create job", 429, "capacity_exceeded", "too many jobs", true)
	assert.True(t, IsTransient(busy))
	assert.True(t, IsTransient(fmt.Errorf("launch: %w", busy)))
	assert.Equal(t, "inference create job: status 429 (capacity_exceeded): too many jobs", busy.Error())

	fatal := NewProviderError("inference", "create job", 400, "", "", false)
	assert.False(t, IsTransient(fatal))
	assert.Equal(t, "inference create job: status 400: no message", fatal.Error())

	var pe *ProviderError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", fatal), &pe))
	assert.Equal(t, 400, pe.StatusCode)
}
