package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadNodeKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	key, err := ReadNodeKey(dir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, NodeKeyName))
	require.NoError(t, err)

	again, err := ReadNodeKey(dir)
	require.NoError(t, err)
	assert.Equal(t, key.Serialize(), again.Serialize())
}

func TestReadNodeKey_InMemory(t *testing.T) {
	a, err := ReadNodeKey("")
	require.NoError(t, err)

	b, err := ReadNodeKey("")
	require.NoError(t, err)

	assert.NotEqual(t, a.Serialize(), b.Serialize())
}

func TestParseNodeKey(t *testing.T) {
	key, encoded, err := GenerateAndEncodeNodeKey()
	require.NoError(t, err)

	parsed, err := ParseNodeKey(append(encoded, '\n'))
	require.NoError(t, err)
	assert.Equal(t, key.Serialize(), parsed.Serialize())

	_, err = ParseNodeKey([]byte("zz"))
	assert.Error(t, err)

	_, err = ParseNodeKey([]byte("0102"))
	assert.Error(t, err)
}
