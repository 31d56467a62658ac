package server

import (
	"fmt"
	"net/http"

	"github.com/gbyat/plugin-updater/pkg/update"
)

// loadPlugin refreshes the plugin state for the current admin request. On
// failure the previously loaded state is kept.
func (s *Server) loadPlugin(r *http.Request) {
	if err := s.updater.LoadPlugin(r.Context()); err != nil {
		s.requestLogger(r).Warnf("could not load plugin: %v", err)
	}
}

func (s *Server) acquireGitHub(w http.ResponseWriter, r *http.Request) bool {
	if err := s.ghSemaphore.Acquire(r.Context(), 1); err != nil {
		s.writeJSONError(w, r, http.StatusTooManyRequests, err, "could not acquire semaphore")
		return false
	}
	return true
}

func (s *Server) updatePlugins(w http.ResponseWriter, r *http.Request) {
	transient := new(update.Transient)
	if !s.decodeJSON(w, r, transient) {
		return
	}
	if !s.acquireGitHub(w, r) {
		return
	}
	defer s.ghSemaphore.Release(1)

	s.loadPlugin(r)
	s.writeJSON(w, s.updater.ModifyTransient(r.Context(), transient))
}

func (s *Server) pluginsAPI(w http.ResponseWriter, r *http.Request) {
	req := new(update.PluginsAPIRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	if !s.acquireGitHub(w, r) {
		return
	}
	defer s.ghSemaphore.Release(1)

	s.loadPlugin(r)
	info, ok := s.updater.PluginPopup(r.Context(), req.Action, req.Slug)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, info)
}

func (s *Server) postInstall(w http.ResponseWriter, r *http.Request) {
	result := new(update.InstallResult)
	if !s.decodeJSON(w, r, result) {
		return
	}
	if result.Destination == "" {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("destination is missing"))
		return
	}
	// the active state must predate extraction, so only load it if nothing
	// earlier in the update did
	if !s.updater.Loaded() {
		s.loadPlugin(r)
	}
	res, err := s.updater.AfterInstall(r.Context(), result)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.requestLogger(r).Infof("installed %s into %s", s.updater.Basename(), res.Destination)
	s.writeJSON(w, res)
}

func (s *Server) processComplete(w http.ResponseWriter, r *http.Request) {
	s.loadPlugin(r)
	if err := s.updater.Purge(r.Context()); err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not purge update cache")
		return
	}
	s.writeJSON(w, map[string]bool{"ok": true})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) setGitHubToken(w http.ResponseWriter, r *http.Request) {
	req := new(tokenRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	var err error
	if req.Token == "" {
		err = s.store.Delete(r.Context(), s.config.TokenOption())
	} else {
		err = s.store.Set(r.Context(), s.config.TokenOption(), []byte(req.Token), 0)
	}
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not store token")
		return
	}
	s.requestLogger(r).Infof("updated %s", s.config.TokenOption())
	s.writeJSON(w, map[string]bool{"ok": true})
}
