package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "navy blue", Normalize("  Navy   BLUE "))
	assert.Equal(t, "", Normalize("   "))
}

func TestSingular(t *testing.T) {
	assert.Equal(t, "shirt", Singular("Shirts"))
	assert.Equal(t, "dress", Singular("dress"))
	assert.Equal(t, "bus", Singular("bus"))
	assert.Equal(t, "shoe", Singular("shoes"))
}

func TestParseGID(t *testing.T) {
	id, err := ParseGID("gid://shopify/Collection/42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = ParseGID("17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	_, err = ParseGID("gid://shopify/Collection/0")
	assert.Error(t, err)
}
