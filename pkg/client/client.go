package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gbyat/plugin-updater/pkg/update"
)

type ErrorResponse struct {
	StatusCode int
	ErrorMsg   string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("unexpected status code: %d, error: %s", e.StatusCode, e.ErrorMsg)
}

// Client talks to the hook API of a running plugin updater.
type Client struct {
	serverURL        string
	adminAccessToken string
	httpClient       *http.Client
}

func New(serverURL, adminAccessToken string) *Client {
	return &Client{
		serverURL:        serverURL,
		adminAccessToken: adminAccessToken,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	apiEndpoint, err := url.JoinPath(c.serverURL, endpoint)
	if err != nil {
		return nil, err
	}
	var bodyReader io.Reader
	if body != nil {
		var bodyBuffer bytes.Buffer
		if err := json.NewEncoder(&bodyBuffer).Encode(body); err != nil {
			return nil, err
		}
		bodyReader = &bodyBuffer
	}
	req, err := http.NewRequestWithContext(ctx, method, apiEndpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Authorization", c.adminAccessToken)
	return c.httpClient.Do(req)
}

func (c *Client) decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		err := json.NewDecoder(resp.Body).Decode(errResp)
		if err != nil {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return errResp
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) expectOK(resp *http.Response, action string) error {
	var okResponse map[string]bool
	if err := c.decodeResponse(resp, &okResponse); err != nil {
		return err
	}
	if !okResponse["ok"] {
		return fmt.Errorf("%s failed: reason unknown", action)
	}
	return nil
}

// UpdatePlugins passes the update transient through the update check hook.
func (c *Client) UpdatePlugins(ctx context.Context, transient *update.Transient) (*update.Transient, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, "hooks/update-plugins", transient)
	if err != nil {
		return nil, err
	}
	var t update.Transient
	if err := c.decodeResponse(resp, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// PluginInformation returns the popup data, or nil if the server does not
// handle the request.
func (c *Client) PluginInformation(ctx context.Context, action, slug string) (*update.PluginInformation, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, "hooks/plugins-api", &update.PluginsAPIRequest{
		Action: action,
		Slug:   slug,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil, nil
	}
	var info update.PluginInformation
	if err := c.decodeResponse(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) PostInstall(ctx context.Context, result *update.InstallResult) (*update.InstallResult, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, "hooks/post-install", result)
	if err != nil {
		return nil, err
	}
	var res update.InstallResult
	if err := c.decodeResponse(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ProcessComplete(ctx context.Context) error {
	resp, err := c.sendRequest(ctx, http.MethodPost, "hooks/process-complete", nil)
	if err != nil {
		return err
	}
	return c.expectOK(resp, "purge")
}

// SetGitHubToken stores the release API token. An empty token removes it.
func (c *Client) SetGitHubToken(ctx context.Context, token string) error {
	resp, err := c.sendRequest(ctx, http.MethodPut, "options/github-token", map[string]string{"token": token})
	if err != nil {
		return err
	}
	return c.expectOK(resp, "set token")
}
