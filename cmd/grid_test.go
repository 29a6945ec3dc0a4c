package main

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/access-cli/internal/model"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("2.22, 48.81,2.47,48.91")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{2.22, 48.81}, b.Min)
	assert.Equal(t, orb.Point{2.47, 48.91}, b.Max)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		_, err := parseBBox(bad)
		require.Error(t, err, bad)
		assert.True(t, model.IsConfiguration(err))
	}
}
