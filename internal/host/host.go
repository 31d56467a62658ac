package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gbyat/plugin-updater/internal/store"
	"github.com/gbyat/plugin-updater/pkg/update"
)

const OptionActivePlugins = "active_plugins"

// FS is a plugin host backed by a plugins directory on disk. The active plugin
// list lives in the options store under OptionActivePlugins.
type FS struct {
	pluginsDir string
	options    store.Store
	mu         sync.Mutex
	rename     func(oldpath, newpath string) error
}

func NewFS(pluginsDir string, options store.Store) *FS {
	return &FS{pluginsDir: pluginsDir, options: options, rename: os.Rename}
}

func (h *FS) PluginFile(basename string) string {
	return filepath.Join(h.pluginsDir, filepath.FromSlash(basename))
}

// InstallDir is the canonical directory of a plugin, e.g. <plugins>/we-icon-blocks.
func (h *FS) InstallDir(basename string) string {
	return filepath.Dir(h.PluginFile(basename))
}

func (h *FS) PluginData(_ context.Context, basename string) (*update.InstalledPluginInfo, error) {
	return ParseHeaderFile(h.PluginFile(basename))
}

func (h *FS) activePlugins(ctx context.Context) ([]string, error) {
	var active []string
	err := store.GetJSON(ctx, h.options, OptionActivePlugins, &active)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return active, err
}

func (h *FS) IsPluginActive(ctx context.Context, basename string) (bool, error) {
	active, err := h.activePlugins(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(active, basename), nil
}

func (h *FS) ActivatePlugin(ctx context.Context, basename string) error {
	if _, err := os.Stat(h.PluginFile(basename)); err != nil {
		return fmt.Errorf("could not activate %s: %w", basename, err)
	}
	return h.setActive(ctx, basename, true)
}

func (h *FS) DeactivatePlugin(ctx context.Context, basename string) error {
	return h.setActive(ctx, basename, false)
}

func (h *FS) setActive(ctx context.Context, basename string, active bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	plugins, err := h.activePlugins(ctx)
	if err != nil {
		return err
	}
	idx := slices.Index(plugins, basename)
	switch {
	case active && idx < 0:
		plugins = append(plugins, basename)
	case !active && idx >= 0:
		plugins = slices.Delete(plugins, idx, idx+1)
	default:
		return nil
	}
	return store.SetJSON(ctx, h.options, OptionActivePlugins, plugins, 0)
}

// Move replaces dst with the contents of src. The previous dst is kept as a
// backup next to it until src is in place and restored if that fails. When src
// cannot be renamed, e.g. because it lives on another filesystem, it is copied.
func (h *FS) Move(src, dst string) error {
	if src == dst {
		return nil
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("move source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}

	backup := ""
	if _, err := os.Lstat(dst); err == nil {
		backup = filepath.Join(filepath.Dir(dst), fmt.Sprintf(".%s.backup-%d", filepath.Base(dst), time.Now().UnixNano()))
		if err := h.rename(dst, backup); err != nil {
			return fmt.Errorf("back up %s: %w", dst, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat destination %s: %w", dst, err)
	}

	if err := h.place(src, dst); err != nil {
		if backup != "" {
			if restoreErr := h.rename(backup, dst); restoreErr != nil {
				return fmt.Errorf("move %s to %s: %w (backup left in %s: %v)", src, dst, err, backup, restoreErr)
			}
		}
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("remove backup %s: %w", backup, err)
		}
	}
	return nil
}

// place puts src at dst, which must not exist. A partial copy is removed again.
func (h *FS) place(src, dst string) error {
	renameErr := h.rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		_ = os.RemoveAll(dst)
		return errors.Join(renameErr, fmt.Errorf("copy: %w", err))
	}
	_ = os.RemoveAll(src)
	return nil
}
