package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/internal/domain/brief"
	"newsdesk/pkg/errors"
)

func ids(agents []Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID()
	}
	return out
}

func TestRegistryForBrief(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticAgent("wire")))
	require.NoError(t, r.Register(staticAgent("policy"), "ai_policy"))
	require.NoError(t, r.Register(staticAgent("markets"), "markets"))

	b := brief.Brief{TopicWeights: map[string]float64{"ai_policy": 0.9}}
	assert.Equal(t, []string{"wire", "policy"}, ids(r.ForBrief(b)))

	none := brief.Brief{TopicWeights: map[string]float64{"sports": 0.9}}
	assert.Equal(t, []string{"wire", "policy", "markets"}, ids(r.ForBrief(none)))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticAgent("a")))
	err := r.Register(staticAgent("a"))
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
	assert.Equal(t, 1, r.Len())

	assert.Error(t, r.Register(staticAgent("")))

	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", got.ID())
	_, ok = r.Get("missing")
	assert.False(t, ok)
}
