package release

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gbyat/plugin-updater/pkg/update"
	"github.com/google/go-github/v59/github"
	"golang.org/x/oauth2"
)

const DefaultTimeout = 30 * time.Second

func getOwnerRepo(fullRepo string) (string, string) {
	owner, repo, found := strings.Cut(fullRepo, "/")
	if !found {
		return "", ""
	}

	return owner, repo
}

// ParseRepo validates an "owner/repo" identifier.
func ParseRepo(fullRepo string) (string, string, error) {
	owner, repo := getOwnerRepo(fullRepo)
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository identifier %q", fullRepo)
	}
	return owner, repo, nil
}

// NewGitHubClient creates a client with a fixed timeout. A non-empty token is sent
// with every request, an empty one falls back to anonymous access.
// apiURL selects an enterprise host, an empty value uses api.github.com.
func NewGitHubClient(token, apiURL string) (*github.Client, error) {
	httpClient := &http.Client{Timeout: DefaultTimeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		httpClient.Timeout = DefaultTimeout
	}
	client := github.NewClient(httpClient)
	if apiURL == "" {
		return client, nil
	}
	return client.WithEnterpriseURLs(apiURL, apiURL)
}

// ClientFactory builds a GitHub client for the given access token.
type ClientFactory func(token string) (*github.Client, error)

type Fetcher struct {
	repo      string
	newClient ClientFactory
}

func NewFetcher(repo string, newClient ClientFactory) *Fetcher {
	return &Fetcher{repo: repo, newClient: newClient}
}

// FetchLatest performs a single request for the latest published release.
func (f *Fetcher) FetchLatest(ctx context.Context, token string) (*update.ReleaseInfo, error) {
	owner, repo, err := ParseRepo(f.repo)
	if err != nil {
		return nil, err
	}
	ghClient, err := f.newClient(token)
	if err != nil {
		return nil, fmt.Errorf("could not create github client: %w", err)
	}
	release, _, err := ghClient.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("could not get latest release of %s: %w", f.repo, err)
	}
	return toReleaseInfo(release), nil
}

func toReleaseInfo(ghr *github.RepositoryRelease) *update.ReleaseInfo {
	assets := make([]update.ReleaseAsset, 0, len(ghr.Assets))
	for _, asset := range ghr.Assets {
		assets = append(assets, update.ReleaseAsset{
			Name:               asset.GetName(),
			BrowserDownloadURL: asset.GetBrowserDownloadURL(),
		})
	}
	return &update.ReleaseInfo{
		TagName:     ghr.GetTagName(),
		PublishedAt: ghr.GetPublishedAt().Time,
		Body:        ghr.GetBody(),
		Assets:      assets,
		ZipballURL:  ghr.GetZipballURL(),
	}
}
