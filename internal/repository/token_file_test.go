package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tronity-connector/internal/api/tronity"
)

func newToken(access string, expiry time.Time) *tronity.Token {
	t := &tronity.Token{}
	t.AccessToken = access
	t.RefreshToken = "refresh-" + access
	t.Expiry = expiry
	return t
}

func TestFileTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "tokens.json")
	store := NewFileTokenStore(path)
	ctx := context.Background()

	_, err := store.LoadToken(ctx, "a")
	assert.ErrorIs(t, err, tronity.ErrTokenNotFound)

	expiry := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveToken(ctx, "a", newToken("token-a", expiry)))
	require.NoError(t, store.SaveToken(ctx, "b", newToken("token-b", expiry)))

	// 新实例从文件读取
	reopened := NewFileTokenStore(path)
	got, err := reopened.LoadToken(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "token-a", got.AccessToken)
	assert.Equal(t, "refresh-token-a", got.RefreshToken)
	assert.True(t, expiry.Equal(got.Expiry))

	got, err = reopened.LoadToken(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "token-b", got.AccessToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileTokenStore_Overwrite(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	ctx := context.Background()
	expiry := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveToken(ctx, "a", newToken("old", expiry)))
	require.NoError(t, store.SaveToken(ctx, "a", newToken("new", expiry)))

	got, err := store.LoadToken(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}

func TestFileTokenStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileTokenStore(path).LoadToken(context.Background(), "a")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, tronity.ErrTokenNotFound)
}
