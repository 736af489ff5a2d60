package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpace(t *testing.T) {
	s, err := ParseSpace("common")
	require.NoError(t, err)
	assert.Equal(t, CommonSpace, s)
	assert.Equal(t, 6, s.NumClasses())

	s, err = ParseSpace("npm")
	require.NoError(t, err)
	assert.Equal(t, NativeSpace(NPM), s)
	assert.Equal(t, "npm", s.String())
	assert.Equal(t, 10, s.NumClasses())

	_, err = ParseSpace("modelnet")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestPaletteCoversEveryLabel(t *testing.T) {
	spaces := []Space{CommonSpace, NativeSpace(Semantic), NativeSpace(NPM)}
	for _, s := range spaces {
		for l := 0; l < s.NumClasses(); l++ {
			c1, err := Color(l, s)
			require.NoError(t, err, "%v label %d", s, l)
			c2, err := Color(l, s)
			require.NoError(t, err)
			assert.Equal(t, c1, c2, "palette must be deterministic")
		}
		_, err := Color(s.NumClasses(), s)
		assert.ErrorIs(t, err, ErrLabelOutOfRange)
	}
}

func TestColorValues(t *testing.T) {
	c, err := Color(CommonUnlabeled, CommonSpace)
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{255, 255, 255}, c)

	c, err = Color(8, NativeSpace(Semantic))
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{255, 255, 0}, c)
}

func TestColorsFor(t *testing.T) {
	colors, err := ColorsFor([]int{2, 2, 0}, CommonSpace)
	require.NoError(t, err)
	require.Len(t, colors, 3)
	assert.Equal(t, [3]uint8{255, 0, 0}, colors[0])
	assert.Equal(t, colors[0], colors[1])

	_, err = ColorsFor([]int{0, 6}, CommonSpace)
	assert.ErrorIs(t, err, ErrLabelOutOfRange)
}
