package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := Configuration("generator.Generate", "flow handle missing for %s", "company_overview")

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, errors.Is(err, ErrStateDrift))
	assert.Contains(t, err.Error(), "company_overview")
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestError_SurvivesWrapping(t *testing.T) {
	cause := errors.New("ValidationException: definition invalid")
	err := fmt.Errorf("section executive_summary: %w", StateDrift("flow.update", cause))

	assert.True(t, errors.Is(err, ErrStateDrift))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, &Error{Kind: KindStateDrift}))
	assert.False(t, errors.Is(err, &Error{Kind: KindStateDrift, Op: "flow.create"}))
	assert.Equal(t, KindStateDrift, KindOf(err))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, "", KindOf(errors.New("boom")))
	assert.Equal(t, KindTransient, KindOf(Transient("kendra.Retrieve", errors.New("throttled"))))
}
