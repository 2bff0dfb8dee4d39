package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllCoversEveryState(t *testing.T) {
	targets := All()
	require.NotEmpty(t, targets)

	states := make(map[string]bool)
	domains := make(map[string]bool)
	for _, target := range targets {
		assert.NotEmpty(t, target.State)
		assert.NotEmpty(t, target.Domain)
		assert.False(t, domains[target.Domain], "duplicate domain %s", target.Domain)
		states[target.State] = true
		domains[target.Domain] = true
	}
	// 50 states plus DC.
	assert.Len(t, states, 51)
}

func TestSelectNoFilterReturnsAll(t *testing.T) {
	targets, err := Select(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, All(), targets)
}

func TestSelectFiltersByDomain(t *testing.T) {
	targets, err := Select([]string{"newyork", "sfbay"}, 0)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	byDomain := make(map[string]string)
	for _, target := range targets {
		byDomain[target.Domain] = target.State
	}
	assert.Equal(t, "New York", byDomain["newyork"])
	assert.Equal(t, "California", byDomain["sfbay"])
}

func TestSelectCapsCount(t *testing.T) {
	targets, err := Select(nil, 5)
	require.NoError(t, err)
	assert.Len(t, targets, 5)
}

func TestSelectFilterThenCap(t *testing.T) {
	targets, err := Select([]string{"austin", "dallas", "houston"}, 2)
	require.NoError(t, err)
	assert.Len(t, targets, 2)
}

func TestSelectUnknownDomain(t *testing.T) {
	targets, err := Select([]string{"atlantis"}, 0)
	assert.Nil(t, targets)
	assert.ErrorIs(t, err, ErrEmptyRegistry)
}

func TestSearchURL(t *testing.T) {
	targets, err := Select([]string{"newyork"}, 0)
	require.NoError(t, err)
	assert.Equal(t,
		"https://newyork.craigslist.org/search/cta?bundleDuplicates=1&hasPic=1&postedToday=1",
		targets[0].SearchURL())
}
