package config

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/gbyat/plugin-updater/internal/release"
	"github.com/gbyat/plugin-updater/internal/store"
	"github.com/google/go-github/v59/github"
	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	Stage            string        `envconfig:"STAGE" default:"dev"`
	ProjectID        string        `envconfig:"GOOGLE_CLOUD_PROJECT_ID"`
	Port             string        `envconfig:"PORT" default:"8080"`
	BindAddress      string        `envconfig:"BIND_ADDRESS" default:"127.0.0.1"`
	AdminAccessToken string        `envconfig:"ADMIN_ACCESS_TOKEN"`
	PluginsDir       string        `envconfig:"PLUGINS_DIR" default:"wp-content/plugins"`
	PluginBasename   string        `envconfig:"PLUGIN_BASENAME" default:"we-icon-blocks/we-icon-blocks.php"`
	PluginAssetName  string        `envconfig:"PLUGIN_ASSET_NAME"`
	GitHubRepo       string        `envconfig:"GITHUB_REPO" default:"gbyat/we-icon-blocks"`
	GitHubAPIURL     string        `envconfig:"GITHUB_API_URL"`
	GitHubToken      string        `envconfig:"GITHUB_TOKEN"`
	DatabasePath     string        `envconfig:"DATABASE_PATH"`
	ReleaseCacheTTL  time.Duration `envconfig:"RELEASE_CACHE_TTL"`
	DisableMetrics   bool          `envconfig:"DISABLE_METRICS" default:"true"`
	Version          string        `ignored:"true"`
}

func NewServerConfigFromEnv() (*ServerConfig, error) {
	var sCfg ServerConfig
	err := envconfig.Process("", &sCfg)
	if err != nil {
		return nil, err
	}
	return &sCfg, nil
}

func (s *ServerConfig) GetServerAddr() string {
	return s.BindAddress + ":" + s.Port
}

// Slug is the plugin directory name, e.g. "we-icon-blocks".
func (s *ServerConfig) Slug() string {
	return path.Dir(s.PluginBasename)
}

// AssetName is the release asset preferred over the source archive.
func (s *ServerConfig) AssetName() string {
	if s.PluginAssetName != "" {
		return s.PluginAssetName
	}
	return s.Slug() + ".zip"
}

// TokenOption is the options store key of the release API access token.
func (s *ServerConfig) TokenOption() string {
	return strings.ReplaceAll(s.Slug(), "-", "_") + "_github_token"
}

func (s *ServerConfig) CreateGitHubClient(token string) (*github.Client, error) {
	return release.NewGitHubClient(token, s.GitHubAPIURL)
}

func (s *ServerConfig) CreateReleaseFetcher() *release.Fetcher {
	return release.NewFetcher(s.GitHubRepo, s.CreateGitHubClient)
}

// CreateStore opens the SQLite store when a database path is configured and
// falls back to an in-memory store otherwise. A configured GitHub token seeds the
// token option when the store does not hold one yet.
func (s *ServerConfig) CreateStore(ctx context.Context) (store.Store, func() error, error) {
	var st store.Store = store.NewMemory()
	closeFn := func() error { return nil }
	if s.DatabasePath != "" {
		db, err := store.OpenSQLite(ctx, s.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		st, closeFn = db, db.Close
	}
	if s.GitHubToken == "" {
		return st, closeFn, nil
	}
	token, err := store.GetString(ctx, st, s.TokenOption())
	if err == nil && token == "" {
		err = st.Set(ctx, s.TokenOption(), []byte(s.GitHubToken), 0)
	}
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return st, closeFn, nil
}
