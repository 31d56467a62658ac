package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gbyat/plugin-updater/internal/config"
	"github.com/gbyat/plugin-updater/internal/host"
	"github.com/gbyat/plugin-updater/internal/installer"
	"github.com/gbyat/plugin-updater/internal/metrics"
	"github.com/gbyat/plugin-updater/internal/server"
	"github.com/gbyat/plugin-updater/internal/store"
	"github.com/gbyat/plugin-updater/internal/updater"
	"github.com/gbyat/plugin-updater/pkg/client"
	"github.com/gbyat/plugin-updater/pkg/update"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

// app bundles everything a command needs. close releases the store.
type app struct {
	cfg     *config.ServerConfig
	store   store.Store
	updater *updater.Updater
	close   func() error
}

func setupApp(ctx context.Context, log *logrus.Logger) (*app, error) {
	cfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	cfg.Version = version

	st, closeFn, err := cfg.CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not open store: %w", err)
	}
	h := host.NewFS(cfg.PluginsDir, st)
	u := updater.New(log, h, cfg.CreateReleaseFetcher(), st, updater.Config{
		Basename:    cfg.PluginBasename,
		AssetName:   cfg.AssetName(),
		TokenOption: cfg.TokenOption(),
		ReleaseTTL:  cfg.ReleaseCacheTTL,
	})
	if err := u.LoadPlugin(ctx); err != nil {
		log.Warnf("could not load plugin: %v", err)
	}
	return &app{cfg: cfg, store: st, updater: u, close: closeFn}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(log *logrus.Logger, a *app) error {
	if !a.cfg.DisableMetrics {
		log.Println("starting metrics exporter...")
		exporter, err := metrics.NewExporter(a.cfg.ProjectID, a.cfg.Stage)
		if err != nil {
			return err
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	}

	log.Println("starting server...")
	srv := &http.Server{
		Addr:              a.cfg.GetServerAddr(),
		Handler:           server.New(log, a.updater, a.store, a.cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	log.Println("stopping server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); errors.Is(err, context.DeadlineExceeded) {
		log.Println("closing server...")
		if closeErr := srv.Close(); closeErr != nil {
			return closeErr
		}
	} else if err != nil {
		return err
	}
	log.Println("server stopped!")
	return nil
}

func runCheck(ctx context.Context, log *logrus.Logger, a *app) error {
	d, ok := a.updater.Check(ctx)
	if !ok {
		log.Infof("%s is up to date", a.updater.Basename())
		return nil
	}
	return printJSON(d)
}

func runInfo(ctx context.Context, _ *logrus.Logger, a *app) error {
	info, ok := a.updater.PluginPopup(ctx, updater.ActionPluginInformation, a.updater.Basename())
	if !ok {
		return fmt.Errorf("no release information available for %s", a.updater.Basename())
	}
	return printJSON(info)
}

func runUpdate(ctx context.Context, log *logrus.Logger, a *app) error {
	d, ok := a.updater.Check(ctx)
	if !ok {
		log.Infof("%s is up to date", a.updater.Basename())
		return nil
	}
	// the work dir sits next to the plugins dir so the final move is a rename
	upgradeDir := filepath.Join(filepath.Dir(filepath.Clean(a.cfg.PluginsDir)), "upgrade")
	if err := os.MkdirAll(upgradeDir, 0o755); err != nil {
		return err
	}
	workDir, err := os.MkdirTemp(upgradeDir, "plugin-updater-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	log.Infof("downloading %s...", d.Package)
	result, checksum, err := installer.Install(ctx, d.Package, workDir)
	if err != nil {
		return err
	}
	log.Infof("package checksum: sha256:%s", checksum)

	res, err := a.updater.AfterInstall(ctx, result)
	if err != nil {
		return err
	}
	if err := a.updater.Purge(ctx); err != nil {
		return err
	}
	log.Infof("updated %s to %s in %s", a.updater.Basename(), d.NewVersion, res.Destination)
	return nil
}

func runSetToken(ctx context.Context, log *logrus.Logger, a *app, token string) error {
	if token == "" {
		log.Infof("removing %s", a.cfg.TokenOption())
		return a.store.Delete(ctx, a.cfg.TokenOption())
	}
	log.Infof("storing %s", a.cfg.TokenOption())
	return a.store.Set(ctx, a.cfg.TokenOption(), []byte(token), 0)
}

// command wraps a subcommand with app setup and teardown.
func command(log *logrus.Logger, use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, a *app, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err := func() error {
				a, err := setupApp(ctx, log)
				if err != nil {
					return err
				}
				defer func() {
					if closeErr := a.close(); closeErr != nil {
						log.Error(closeErr)
					}
				}()
				return fn(ctx, a, args)
			}()
			if err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// remoteCommand talks to a running server instead of the local plugin directory.
func remoteCommand(log *logrus.Logger) *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Call the hooks of a running plugin-updater server",
	}
	remote.PersistentFlags().String("server-url", "http://127.0.0.1:8080/api/v1", "the plugin-updater API URL")
	remote.PersistentFlags().String("admin-access-token", os.Getenv("ADMIN_ACCESS_TOKEN"), "admin access token")
	remote.PersistentFlags().String("plugin", "we-icon-blocks/we-icon-blocks.php", "the plugin basename")
	remote.PersistentFlags().SortFlags = false

	sub := func(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, c *client.Client, plugin string, args []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			Run: func(cmd *cobra.Command, args []string) {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				flags := cmd.Flags()
				adminAccessToken := must(flags.GetString("admin-access-token"))
				if adminAccessToken == "" {
					log.Error("ERROR: no admin access token provided")
					os.Exit(1)
				}
				c := client.New(must(flags.GetString("server-url")), adminAccessToken)
				if err := fn(ctx, c, must(flags.GetString("plugin")), args); err != nil {
					log.Errorf("ERROR: %v", err)
					os.Exit(1)
				}
			},
		}
	}

	remote.AddCommand(
		sub("check", "Print the pending update of the plugin", cobra.NoArgs, func(ctx context.Context, c *client.Client, plugin string, _ []string) error {
			transient, err := c.UpdatePlugins(ctx, &update.Transient{})
			if err != nil {
				return err
			}
			d, ok := transient.Response[plugin]
			if !ok {
				log.Infof("%s is up to date", plugin)
				return nil
			}
			return printJSON(d)
		}),
		sub("info", "Print the plugin information popup", cobra.NoArgs, func(ctx context.Context, c *client.Client, plugin string, _ []string) error {
			info, err := c.PluginInformation(ctx, updater.ActionPluginInformation, plugin)
			if err != nil {
				return err
			}
			if info == nil {
				return fmt.Errorf("no release information available for %s", plugin)
			}
			return printJSON(info)
		}),
		sub("purge", "Drop the cached pending update", cobra.NoArgs, func(ctx context.Context, c *client.Client, _ string, _ []string) error {
			return c.ProcessComplete(ctx)
		}),
		sub("set-token [token]", "Store the GitHub access token, an empty token removes it", cobra.MaximumNArgs(1), func(ctx context.Context, c *client.Client, _ string, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			}
			return c.SetGitHubToken(ctx, token)
		}),
	)
	return remote
}

func main() {
	log := setupLogger()
	cmd := &cobra.Command{
		Use:     "plugin-updater",
		Short:   "Keep a plugin up to date with its GitHub releases",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.AddCommand(
		command(log, "serve", "Serve the update hooks over HTTP", cobra.NoArgs, func(_ context.Context, a *app, _ []string) error {
			log.Infof("starting plugin-updater (version=%s)", version)
			return runServe(log, a)
		}),
		command(log, "check", "Print the pending update of the plugin", cobra.NoArgs, func(ctx context.Context, a *app, _ []string) error {
			return runCheck(ctx, log, a)
		}),
		command(log, "info", "Print the plugin information popup", cobra.NoArgs, func(ctx context.Context, a *app, _ []string) error {
			return runInfo(ctx, log, a)
		}),
		command(log, "update", "Download and install the latest release", cobra.NoArgs, func(ctx context.Context, a *app, _ []string) error {
			return runUpdate(ctx, log, a)
		}),
		command(log, "set-token [token]", "Store the GitHub access token, an empty token removes it", cobra.MaximumNArgs(1), func(ctx context.Context, a *app, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			}
			return runSetToken(ctx, log, a, token)
		}),
		remoteCommand(log),
	)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
