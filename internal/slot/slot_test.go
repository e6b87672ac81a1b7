package slot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for day := 0; day < 40; day++ {
		for hour := 0; hour < MaxHour; hour++ {
			d, h, ok := Decode(string(Encode(day, hour)))
			require.True(t, ok, "decode(encode(%d,%d))", day, hour)
			require.Equal(t, day, d)
			require.Equal(t, hour, h)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	inputs := []string{
		"", "d", "d0", "d0_", "d0_h", "h9", "0_h9", "d-1_h9", "d0_h-1",
		"d0_h24", "d01_h9", "d0_h09", "d0_h9x", "xd0_h9", "d0_h9_h3",
		"D0_H9", "d0h9", "d 0_h9", "d1.5_h9", "d9999999_h1", "d٣_h1",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, _, ok := Decode(in)
				assert.False(t, ok)
			})
			_, err := Parse(in)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestEnumerate(t *testing.T) {
	got := Enumerate(2, 9, 11)
	assert.Equal(t, []ID{"d0_h9", "d0_h10", "d1_h9", "d1_h10"}, got)

	assert.Empty(t, Enumerate(0, 9, 11))
	assert.Empty(t, Enumerate(1, 11, 9))
	assert.Empty(t, Enumerate(1, 9, 25))
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare("d0_h10", "d1_h9"))
	assert.Negative(t, Compare("d0_h9", "d0_h10"))
	assert.Zero(t, Compare("d2_h3", "d2_h3"))
	assert.Positive(t, Compare("d10_h0", "d9_h23"))
	assert.Negative(t, Compare("bogus", "d0_h0"))
}

func TestGridNormalize(t *testing.T) {
	g := Grid{Days: 2, StartHour: 9, EndHour: 12}

	ids, rejected := g.Normalize([]string{"d1_h9", "d0_h11", "d1_h9", "d2_h9", "d0_h8", "junk", "d0_h9"})
	assert.Equal(t, []ID{"d0_h9", "d0_h11", "d1_h9"}, ids)
	assert.Equal(t, []string{"d2_h9", "d0_h8", "junk"}, rejected)
	assert.Equal(t, 6, g.Size())
	assert.Len(t, g.Cells(), 6)
}

func TestIDAccessors(t *testing.T) {
	id := Encode(3, 17)
	assert.Equal(t, "d3_h17", id.String())
	assert.Equal(t, 3, id.Day())
	assert.Equal(t, 17, id.Hour())
	assert.Equal(t, -1, ID("nope").Day())
}
