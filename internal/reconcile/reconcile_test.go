package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/herald/internal/topics"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		current topics.Set
		desired topics.Set
		open    bool
		want    Decision
	}{
		{name: "same set different order", current: topics.Set{"x", "y"}, desired: topics.Set{"y", "x"}, open: true, want: Reuse},
		{name: "changed set", current: topics.Set{"x"}, desired: topics.Set{"x", "y"}, open: true, want: Reopen},
		{name: "subset is a change", current: topics.Set{"x", "y"}, desired: topics.Set{"x"}, open: true, want: Reopen},
		{name: "everything removed", current: topics.Set{"x"}, desired: topics.Set{}, open: true, want: CloseOnly},
		{name: "nothing open", current: nil, desired: topics.Set{"x"}, open: false, want: OpenFresh},
		{name: "stale applied set while closed", current: topics.Set{"x"}, desired: topics.Set{"x"}, open: false, want: OpenFresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.current, tt.desired, tt.open)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecide_NoTopics(t *testing.T) {
	_, err := Decide(topics.Set{"x"}, nil, false)
	assert.ErrorIs(t, err, ErrNoTopics)
}

func TestDecision_Helpers(t *testing.T) {
	assert.True(t, Reopen.Opens())
	assert.True(t, OpenFresh.Opens())
	assert.False(t, Reuse.Opens())
	assert.False(t, CloseOnly.Opens())

	assert.True(t, Reopen.Closes())
	assert.True(t, CloseOnly.Closes())
	assert.False(t, OpenFresh.Closes())

	assert.Equal(t, "close_only", CloseOnly.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
