package theme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGPL(t *testing.T) {
	src := `GIMP Palette
Name: two
Columns: 2
# comment
  0   0   0	black
255 255 255	white
`
	p, err := parseGPL(strings.NewReader(src), "two.gpl")
	require.NoError(t, err)
	assert.Equal(t, "two", p.Name)
	assert.Equal(t, []RGB{{0, 0, 0}, {255, 255, 255}}, p.Colors)
	assert.Equal(t, RGB{127, 127, 127}, p.Lookup(0.5))
	assert.Equal(t, RGB{255, 255, 255}, p.Lookup(2))
}

func TestParseGPLTooFewColors(t *testing.T) {
	_, err := parseGPL(strings.NewReader("GIMP Palette\n1 2 3\n"), "one.gpl")
	assert.Error(t, err)
}

func TestThemeDefaults(t *testing.T) {
	th := New(nil)
	assert.Equal(t, "ivory", th.Palette.Name)
	assert.NotEqual(t, th.BlackKey(), th.WhiteKey())
	assert.Equal(t, th.Color(RoleActive), th.Active())
}
