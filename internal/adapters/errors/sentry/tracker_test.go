package sentry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"

	"newsdesk/pkg/errors"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, sentry.LevelWarning, levelFor(errors.Wrap(errors.ErrStageDegraded, "trend")))
	assert.Equal(t, sentry.LevelWarning, levelFor(errors.Wrap(errors.ErrPreferenceConflict, "user 42")))
	assert.Equal(t, sentry.LevelError, levelFor(errors.New("boom")))
}
