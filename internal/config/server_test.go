package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gbyat/plugin-updater/internal/store"
	"github.com/stretchr/testify/require"
)

func TestServerConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RELEASE_CACHE_TTL", "10m")
	cfg, err := NewServerConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.GetServerAddr())
	require.Equal(t, 10*time.Minute, cfg.ReleaseCacheTTL)
	require.True(t, cfg.DisableMetrics)
	require.Equal(t, "we-icon-blocks", cfg.Slug())
	require.Equal(t, "we-icon-blocks.zip", cfg.AssetName())
	require.Equal(t, "we_icon_blocks_github_token", cfg.TokenOption())

	cfg.PluginAssetName = "bundle.zip"
	require.Equal(t, "bundle.zip", cfg.AssetName())
}

func TestCreateStoreSeedsToken(t *testing.T) {
	ctx := context.Background()
	cfg := &ServerConfig{
		PluginBasename: "we-icon-blocks/we-icon-blocks.php",
		DatabasePath:   filepath.Join(t.TempDir(), "options.db"),
		GitHubToken:    "from-env",
	}
	st, closeFn, err := cfg.CreateStore(ctx)
	require.NoError(t, err)
	token, err := store.GetString(ctx, st, cfg.TokenOption())
	require.NoError(t, err)
	require.Equal(t, "from-env", token)
	require.NoError(t, st.Set(ctx, cfg.TokenOption(), []byte("stored"), 0))
	require.NoError(t, closeFn())

	st, closeFn, err = cfg.CreateStore(ctx)
	require.NoError(t, err)
	defer closeFn()
	token, err = store.GetString(ctx, st, cfg.TokenOption())
	require.NoError(t, err)
	require.Equal(t, "stored", token)
}

func TestCreateStoreMemory(t *testing.T) {
	cfg := &ServerConfig{PluginBasename: "we-icon-blocks/we-icon-blocks.php"}
	st, closeFn, err := cfg.CreateStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.IsType(t, &store.Memory{}, st)
}
