package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gbyat/plugin-updater/internal/markdown"
	"github.com/gbyat/plugin-updater/internal/metrics"
	"github.com/gbyat/plugin-updater/internal/store"
	"github.com/gbyat/plugin-updater/pkg/update"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

const (
	ActionPluginInformation = "plugin_information"
	NoChangelog             = "No changelog available."
	ChangelogFile           = "CHANGELOG.md"
	ReadmeFile              = "README.md"
)

// Host is the plugin manager the updater plugs into.
type Host interface {
	PluginData(ctx context.Context, basename string) (*update.InstalledPluginInfo, error)
	IsPluginActive(ctx context.Context, basename string) (bool, error)
	ActivatePlugin(ctx context.Context, basename string) error
	InstallDir(basename string) string
	Move(src, dst string) error
}

// ReleaseFetcher returns the latest release of the configured repository.
type ReleaseFetcher interface {
	FetchLatest(ctx context.Context, token string) (*update.ReleaseInfo, error)
}

type Config struct {
	// Basename identifies the plugin, e.g. "we-icon-blocks/we-icon-blocks.php".
	Basename string
	// AssetName is the release asset preferred over the source archive.
	AssetName string
	// TokenOption is the options store key holding the access token.
	TokenOption string
	// ReleaseTTL keeps fetched releases in the transient store. Zero disables it.
	ReleaseTTL time.Duration
}

// Updater checks a release API for newer versions of a single plugin and
// implements the host's update hooks.
type Updater struct {
	log     *logrus.Logger
	host    Host
	fetcher ReleaseFetcher
	store   store.Store
	cfg     Config

	mu     sync.RWMutex
	plugin *update.InstalledPluginInfo
	active bool
}

func New(log *logrus.Logger, host Host, fetcher ReleaseFetcher, st store.Store, cfg Config) *Updater {
	if cfg.AssetName == "" {
		cfg.AssetName = filepath.Dir(filepath.FromSlash(cfg.Basename)) + ".zip"
	}
	return &Updater{
		log:     log,
		host:    host,
		fetcher: fetcher,
		store:   st,
		cfg:     cfg,
	}
}

func (u *Updater) Basename() string {
	return u.cfg.Basename
}

// TransientKey is the store key of the cached pending update of the plugin.
func (u *Updater) TransientKey() string {
	return strings.ReplaceAll(filepath.Dir(filepath.FromSlash(u.cfg.Basename)), "-", "_") + "_update_" + u.cfg.Basename
}

func (u *Updater) record(ctx context.Context, m stats.Measurement) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.TagPlugin, u.cfg.Basename))
	stats.Record(ctx, m)
}

// LoadPlugin refreshes the plugin metadata and active state from the host.
func (u *Updater) LoadPlugin(ctx context.Context) error {
	plugin, err := u.host.PluginData(ctx, u.cfg.Basename)
	if err != nil {
		return fmt.Errorf("could not load plugin data: %w", err)
	}
	active, err := u.host.IsPluginActive(ctx, u.cfg.Basename)
	if err != nil {
		return fmt.Errorf("could not get plugin state: %w", err)
	}
	u.mu.Lock()
	u.plugin = plugin
	u.active = active
	u.mu.Unlock()
	return nil
}

// Loaded reports whether plugin state has been loaded from the host.
func (u *Updater) Loaded() bool {
	plugin, _ := u.state()
	return plugin != nil
}

func (u *Updater) state() (*update.InstalledPluginInfo, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.plugin, u.active
}

func (u *Updater) accessToken(ctx context.Context) string {
	token, err := store.GetString(ctx, u.store, u.cfg.TokenOption)
	if err != nil {
		u.log.Warnf("could not read access token, using anonymous access: %v", err)
		return ""
	}
	return token
}

func (u *Updater) cachedRelease(ctx context.Context) *update.ReleaseInfo {
	if u.cfg.ReleaseTTL <= 0 {
		return nil
	}
	var r update.ReleaseInfo
	if err := store.GetJSON(ctx, u.store, u.TransientKey(), &r); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			u.log.Warnf("ignoring cached release: %v", err)
		}
		return nil
	}
	u.record(ctx, metrics.CounterReleaseCacheHit.M(1))
	return &r
}

// FetchRelease returns the latest release or nil. Failures are logged and never
// returned, a missing release means there is nothing to offer.
func (u *Updater) FetchRelease(ctx context.Context) *update.ReleaseInfo {
	if r := u.cachedRelease(ctx); r != nil {
		return r
	}
	r, err := u.fetcher.FetchLatest(ctx, u.accessToken(ctx))
	if err != nil {
		u.record(ctx, metrics.CounterFetchFailures.M(1))
		u.log.Warnf("release fetch failed: %v", err)
		return nil
	}
	if u.cfg.ReleaseTTL > 0 {
		if err := store.SetJSON(ctx, u.store, u.TransientKey(), r, u.cfg.ReleaseTTL); err != nil {
			u.log.Warnf("could not cache release: %v", err)
		}
	}
	return r
}

// ResolveDownloadURL prefers the named release asset over the source archive.
func ResolveDownloadURL(r *update.ReleaseInfo, assetName string) string {
	if u, ok := r.FindAsset(assetName); ok && u != "" {
		return u
	}
	return r.ZipballURL
}

// CheckUpdate returns a descriptor if the release is newer than the installed plugin.
func CheckUpdate(plugin *update.InstalledPluginInfo, r *update.ReleaseInfo, active bool, basename, assetName string) (*update.UpdateDescriptor, bool) {
	if plugin == nil || r == nil || !active {
		return nil, false
	}
	newVersion := r.Version()
	if !IsNewer(plugin.Version, newVersion) {
		return nil, false
	}
	return &update.UpdateDescriptor{
		Slug:        basename,
		NewVersion:  newVersion,
		URL:         plugin.PluginURI,
		Package:     ResolveDownloadURL(r, assetName),
		Tested:      plugin.Tested(),
		Requires:    plugin.Requires(),
		RequiresPHP: plugin.RequiresPHPVersion(),
	}, true
}

// Check fetches the latest release and compares it with the installed plugin.
func (u *Updater) Check(ctx context.Context) (*update.UpdateDescriptor, bool) {
	u.record(ctx, metrics.CounterUpdateChecks.M(1))
	plugin, active := u.state()
	if plugin == nil || !active {
		return nil, false
	}
	d, ok := CheckUpdate(plugin, u.FetchRelease(ctx), active, u.cfg.Basename, u.cfg.AssetName)
	if ok {
		u.record(ctx, metrics.CounterUpdatesFound.M(1))
		u.log.Infof("update available for %s: %s -> %s", u.cfg.Basename, plugin.Version, d.NewVersion)
	}
	return d, ok
}

// ModifyTransient adds the pending update of the plugin to the host's update
// transient. Without an update the transient is returned unmodified.
func (u *Updater) ModifyTransient(ctx context.Context, t *update.Transient) *update.Transient {
	if t == nil {
		t = &update.Transient{}
	}
	d, ok := u.Check(ctx)
	if !ok {
		return t
	}
	t.SetResponse(u.cfg.Basename, d)
	return t
}

func (u *Updater) readLocalMarkdown(name string) string {
	p := filepath.Join(u.host.InstallDir(u.cfg.Basename), name)
	content, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			u.log.Warnf("could not read %s: %v", p, err)
		}
		return ""
	}
	if len(content) == 0 {
		return ""
	}
	return markdown.Format(string(content))
}

// PluginPopup builds the plugin information popup. The second return value is
// false when the request is not for this plugin or no release is known.
func (u *Updater) PluginPopup(ctx context.Context, action, slug string) (*update.PluginInformation, bool) {
	if action != ActionPluginInformation || slug != u.cfg.Basename {
		return nil, false
	}
	plugin, _ := u.state()
	if plugin == nil {
		return nil, false
	}
	r := u.FetchRelease(ctx)
	if r == nil {
		return nil, false
	}

	changelog := u.readLocalMarkdown(ChangelogFile)
	if changelog == "" {
		changelog = r.Body
	}
	if changelog == "" {
		changelog = NoChangelog
	}

	description := u.readLocalMarkdown(ReadmeFile)
	if description == "" {
		description = plugin.Description
	}

	return &update.PluginInformation{
		Name:             plugin.Name,
		Slug:             u.cfg.Basename,
		Version:          r.TagName,
		Author:           plugin.AuthorName,
		AuthorProfile:    plugin.AuthorURI,
		LastUpdated:      r.PublishedAt,
		Homepage:         plugin.PluginURI,
		ShortDescription: plugin.Description,
		Sections: update.Sections{
			Description: description,
			Changelog:   changelog,
		},
		DownloadLink: r.ZipballURL,
		Requires:     plugin.Requires(),
		Tested:       plugin.Tested(),
		RequiresPHP:  plugin.RequiresPHPVersion(),
	}, true
}

// AfterInstall moves an extracted package into the plugin directory and restores
// the active state the plugin had when its state was last loaded, which is before
// the package was extracted. Move errors are returned to the installer.
func (u *Updater) AfterInstall(ctx context.Context, result *update.InstallResult) (*update.InstallResult, error) {
	installDir := u.host.InstallDir(u.cfg.Basename)
	if err := u.host.Move(result.Destination, installDir); err != nil {
		return nil, fmt.Errorf("could not move package into %s: %w", installDir, err)
	}
	_, wasActive := u.state()

	res := *result
	res.Destination = installDir
	res.DestinationName = filepath.Base(installDir)
	res.LocalDestination = filepath.Dir(installDir)
	res.RemoteDestination = installDir

	if err := u.LoadPlugin(ctx); err != nil {
		u.log.Warnf("could not reload plugin data: %v", err)
	}
	if wasActive {
		if err := u.host.ActivatePlugin(ctx, u.cfg.Basename); err != nil {
			return &res, fmt.Errorf("could not reactivate %s: %w", u.cfg.Basename, err)
		}
		u.mu.Lock()
		u.active = true
		u.mu.Unlock()
		u.log.Infof("reactivated %s", u.cfg.Basename)
	}
	return &res, nil
}

// Purge drops the cached pending update so the next check fetches fresh release data.
func (u *Updater) Purge(ctx context.Context) error {
	if _, active := u.state(); !active {
		return nil
	}
	if err := u.store.Delete(ctx, u.TransientKey()); err != nil {
		return fmt.Errorf("could not purge %s: %w", u.TransientKey(), err)
	}
	u.record(ctx, metrics.CounterPurges.M(1))
	return nil
}
