package brief

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/pkg/errors"
)

func validBrief() Brief {
	return Brief{
		UserID:         "42",
		TopicWeights:   map[string]float64{"ai_policy": 0.9, "markets": 0.4},
		RequestedCount: 5,
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	assert.NoError(t, validBrief().Validate(50))
}

func TestValidateCollectsAllViolations(t *testing.T) {
	b := Brief{TopicWeights: map[string]float64{"x": 1.5, "y": math.NaN()}, RequestedCount: 0}

	err := b.Validate(50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidBrief))

	var multi *errors.MultiError
	require.True(t, errors.As(err, &multi))
	assert.Len(t, multi.Errors, 4)
}

func TestValidateMaxRequested(t *testing.T) {
	b := validBrief()
	b.RequestedCount = 51
	assert.True(t, errors.Is(b.Validate(50), errors.ErrInvalidBrief))
	assert.NoError(t, b.Validate(0))
}

func TestTopicsOrdering(t *testing.T) {
	b := Brief{TopicWeights: map[string]float64{"b": 0.5, "a": 0.5, "c": 0.9}}
	assert.Equal(t, []string{"c", "a", "b"}, b.Topics())
	assert.Equal(t, "c", b.DominantTopic())
	assert.Equal(t, "", Brief{}.DominantTopic())
}

func TestCloneIsIndependent(t *testing.T) {
	b := validBrief()
	b.Constraints.ExcludeSources = []string{"x"}
	c := b.Clone()
	c.TopicWeights["ai_policy"] = 0.1
	c.Constraints.ExcludeSources[0] = "y"

	assert.Equal(t, 0.9, b.TopicWeights["ai_policy"])
	assert.True(t, b.Excludes("x"))
	assert.False(t, b.Excludes("y"))
}
