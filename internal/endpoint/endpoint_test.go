package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilemosaic/internal/fetch"
)

func TestResolveXYZ(t *testing.T) {
	def, err := Resolve("xyz", Params{
		URITemplate: "https://tiles.example.com/{z}/{x}/{y}.{format}",
	})
	require.NoError(t, err)
	assert.Equal(t, "slippy", def.Convention)
	assert.Equal(t, "png", def.Format, "png is the default format")
}

func TestResolveWMTS(t *testing.T) {
	creds := &fetch.Credentials{Username: "u", Password: "p"}
	def, err := Resolve("WMTS", Params{
		URITemplate: "https://wmts.example.com/{z}/{y}/{x}.{format}",
		Format:      "jpeg",
		Options:     map[string]string{"MAX_DIMENSION": "8192"},
		Credentials: creds,
	})
	require.NoError(t, err)
	assert.Equal(t, "mercator", def.Convention)
	assert.Equal(t, "jpeg", def.Format)
	assert.Equal(t, "8192", def.Options["MAX_DIMENSION"])
	assert.Same(t, creds, def.Credentials)
}

func TestResolveUnknownType(t *testing.T) {
	_, err := Resolve("catalog", Params{URITemplate: "https://x/{z}/{x}/{y}"})
	assert.ErrorContains(t, err, "unknown type")
	assert.ErrorContains(t, err, "xyz")
}

func TestResolveRejectsBadTemplate(t *testing.T) {
	_, err := Resolve("xyz", Params{})
	assert.ErrorContains(t, err, "required")

	_, err = Resolve("xyz", Params{URITemplate: "https://tiles.example.com/static.png"})
	assert.ErrorContains(t, err, "placeholders")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("xyz", func(Params) (Definition, error) { return Definition{}, nil })
	})
}
