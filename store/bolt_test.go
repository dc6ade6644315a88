package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")

	b, err := OpenBolt(path)
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.Get("token")
	assert.False(t, ok)

	require.NoError(t, b.Set("token", "jwt"))
	v, ok := b.Get("token")
	assert.True(t, ok)
	assert.Equal(t, "jwt", v)

	require.NoError(t, b.Delete("token", "missing"))
	_, ok = b.Get("token")
	assert.False(t, ok)
}

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")

	b, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, b.Set("chatHistory_alice", "{}"))
	require.NoError(t, b.Close())

	b2, err := OpenBolt(path)
	require.NoError(t, err)
	defer b2.Close()

	v, ok := b2.Get("chatHistory_alice")
	assert.True(t, ok)
	assert.Equal(t, "{}", v)
}
