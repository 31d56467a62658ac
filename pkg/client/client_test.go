package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gbyat/plugin-updater/pkg/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatePlugins(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/hooks/update-plugins", r.URL.Path)
		assert.Equal(t, "admin", r.Header.Get("Authorization"))
		var transient update.Transient
		require.NoError(t, json.NewDecoder(r.Body).Decode(&transient))
		transient.SetResponse("p/p.php", &update.UpdateDescriptor{Slug: "p/p.php", NewVersion: "1.1.0"})
		require.NoError(t, json.NewEncoder(w).Encode(&transient))
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin")
	transient, err := c.UpdatePlugins(context.Background(), &update.Transient{LastChecked: 42})
	require.NoError(t, err)
	require.Equal(t, int64(42), transient.LastChecked)
	require.Equal(t, "1.1.0", transient.Response["p/p.php"].NewVersion)
}

func TestPluginInformation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hooks/plugins-api", r.URL.Path)
		var req update.PluginsAPIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Slug != "p/p.php" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(&update.PluginInformation{Name: "P", Version: "v1.1.0"}))
	}))
	defer ts.Close()
	c := New(ts.URL, "admin")

	info, err := c.PluginInformation(context.Background(), "plugin_information", "other/other.php")
	require.NoError(t, err)
	require.Nil(t, info)

	info, err = c.PluginInformation(context.Background(), "plugin_information", "p/p.php")
	require.NoError(t, err)
	require.Equal(t, "v1.1.0", info.Version)
}

func TestErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid access token"}`))
	}))
	defer ts.Close()
	c := New(ts.URL, "wrong")
	err := c.ProcessComplete(context.Background())
	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	require.Equal(t, http.StatusUnauthorized, errResp.StatusCode)
	require.Equal(t, "invalid access token", errResp.ErrorMsg)
}

func TestSetGitHubToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/options/github-token", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["token"] == "fail" {
			_, _ = w.Write([]byte(`{"ok":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()
	c := New(ts.URL, "admin")
	require.NoError(t, c.SetGitHubToken(context.Background(), "secret"))
	require.ErrorContains(t, c.SetGitHubToken(context.Background(), "fail"), "reason unknown")
}

func TestPostInstall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var res update.InstallResult
		require.NoError(t, json.NewDecoder(r.Body).Decode(&res))
		res.Destination = "/plugins/p"
		require.NoError(t, json.NewEncoder(w).Encode(&res))
	}))
	defer ts.Close()
	c := New(ts.URL, "admin")
	res, err := c.PostInstall(context.Background(), &update.InstallResult{Destination: "/tmp/x"})
	require.NoError(t, err)
	require.Equal(t, "/plugins/p", res.Destination)
}
