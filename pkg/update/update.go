package update

import (
	"strings"
	"time"
)

const (
	DefaultTested      = "6.8.3"
	DefaultRequires    = "6.0"
	DefaultRequiresPHP = "8.0"
)

// InstalledPluginInfo is the header metadata of the installed plugin.
// Optional header fields are empty when the plugin file omits them.
type InstalledPluginInfo struct {
	Name            string `json:"name"`
	PluginURI       string `json:"plugin_uri"`
	Version         string `json:"version"`
	Description     string `json:"description"`
	Author          string `json:"author"`
	AuthorName      string `json:"author_name"`
	AuthorURI       string `json:"author_uri"`
	TextDomain      string `json:"text_domain"`
	TestedUpTo      string `json:"tested_up_to"`
	RequiresAtLeast string `json:"requires_at_least"`
	RequiresPHP     string `json:"requires_php"`
}

func (p *InstalledPluginInfo) Tested() string {
	return orDefault(p.TestedUpTo, DefaultTested)
}

func (p *InstalledPluginInfo) Requires() string {
	return orDefault(p.RequiresAtLeast, DefaultRequires)
}

func (p *InstalledPluginInfo) RequiresPHPVersion() string {
	return orDefault(p.RequiresPHP, DefaultRequiresPHP)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// ReleaseInfo is the subset of the release API response the updater consumes.
type ReleaseInfo struct {
	TagName     string         `json:"tag_name"`
	PublishedAt time.Time      `json:"published_at"`
	Body        string         `json:"body"`
	Assets      []ReleaseAsset `json:"assets"`
	ZipballURL  string         `json:"zipball_url"`
}

// Version returns the tag without one leading "v".
func (r *ReleaseInfo) Version() string {
	return NormalizeVersion(r.TagName)
}

// FindAsset returns the download URL of the asset with the exact name.
func (r *ReleaseInfo) FindAsset(name string) (string, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a.BrowserDownloadURL, true
		}
	}
	return "", false
}

func NormalizeVersion(tag string) string {
	return strings.TrimPrefix(tag, "v")
}

type UpdateDescriptor struct {
	Slug        string `json:"slug"`
	NewVersion  string `json:"new_version"`
	URL         string `json:"url"`
	Package     string `json:"package"`
	Tested      string `json:"tested"`
	Requires    string `json:"requires"`
	RequiresPHP string `json:"requires_php"`
}

// Transient mirrors the host's "update_plugins" site transient.
type Transient struct {
	LastChecked int64                        `json:"last_checked,omitempty"`
	Checked     map[string]string            `json:"checked,omitempty"`
	Response    map[string]*UpdateDescriptor `json:"response,omitempty"`
	NoUpdate    map[string]*UpdateDescriptor `json:"no_update,omitempty"`
}

// SetResponse inserts or overwrites the pending update of a plugin.
func (t *Transient) SetResponse(basename string, d *UpdateDescriptor) {
	if t.Response == nil {
		t.Response = make(map[string]*UpdateDescriptor)
	}
	t.Response[basename] = d
}

type Sections struct {
	Description string `json:"description"`
	Changelog   string `json:"changelog"`
}

// PluginInformation is rendered by the host in its "view details" popup.
type PluginInformation struct {
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Version          string    `json:"version"`
	Author           string    `json:"author"`
	AuthorProfile    string    `json:"author_profile"`
	LastUpdated      time.Time `json:"last_updated"`
	Homepage         string    `json:"homepage"`
	ShortDescription string    `json:"short_description"`
	Sections         Sections  `json:"sections"`
	DownloadLink     string    `json:"download_link"`
	Requires         string    `json:"requires"`
	Tested           string    `json:"tested"`
	RequiresPHP      string    `json:"requires_php"`
}

type InstallResult struct {
	Source            string `json:"source"`
	Destination       string `json:"destination"`
	DestinationName   string `json:"destination_name"`
	LocalDestination  string `json:"local_destination"`
	RemoteDestination string `json:"remote_destination"`
	ClearDestination  bool   `json:"clear_destination"`
}

type PluginsAPIRequest struct {
	Action string `json:"action"`
	Slug   string `json:"slug"`
}
