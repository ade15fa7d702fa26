package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(arbor.NewNoOpLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestKVStorage_SetGetDelete(t *testing.T) {
	kv := newTestManager(t).KeyValueStorage()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "Pinecone_API_Key", "pc-123", "test key"))

	// Keys are case-insensitive
	value, err := kv.Get(ctx, "pinecone_api_key")
	require.NoError(t, err)
	assert.Equal(t, "pc-123", value)

	pair, err := kv.GetPair(ctx, "PINECONE_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "pinecone_api_key", pair.Key)
	assert.Equal(t, "test key", pair.Description)

	require.NoError(t, kv.Delete(ctx, "pinecone_api_key"))
	_, err = kv.Get(ctx, "pinecone_api_key")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	assert.ErrorIs(t, kv.Delete(ctx, "pinecone_api_key"), interfaces.ErrKeyNotFound)
}

func TestKVStorage_UpsertPreservesCreatedAt(t *testing.T) {
	kv := newTestManager(t).KeyValueStorage()
	ctx := context.Background()

	isNew, err := kv.Upsert(ctx, "state", "v1", "")
	require.NoError(t, err)
	assert.True(t, isNew)

	first, err := kv.GetPair(ctx, "state")
	require.NoError(t, err)

	isNew, err = kv.Upsert(ctx, "state", "v2", "")
	require.NoError(t, err)
	assert.False(t, isNew)

	second, err := kv.GetPair(ctx, "state")
	require.NoError(t, err)
	assert.Equal(t, "v2", second.Value)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestKVStorage_GetAllAndList(t *testing.T) {
	kv := newTestManager(t).KeyValueStorage()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", "1", ""))
	require.NoError(t, kv.Set(ctx, "b", "2", ""))

	all, err := kv.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	pairs, err := kv.List(ctx)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestManager_LoadVariablesFromFiles(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	content := `
[groq_api_key]
value = "gsk-test"
description = "Groq key"

[empty_key]
value = ""
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables.toml"), []byte(content), 0644))

	require.NoError(t, manager.LoadVariablesFromFiles(ctx, dir))

	value, err := manager.KeyValueStorage().Get(ctx, "groq_api_key")
	require.NoError(t, err)
	assert.Equal(t, "gsk-test", value)

	_, err = manager.KeyValueStorage().Get(ctx, "empty_key")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestManager_LoadVariablesFromFiles_MissingFile(t *testing.T) {
	manager := newTestManager(t)
	assert.NoError(t, manager.LoadVariablesFromFiles(context.Background(), t.TempDir()))
}
