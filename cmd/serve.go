package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/KaramelBytes/surveyloom/internal/config"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/project"
	"github.com/KaramelBytes/surveyloom/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveProject   string
	serveAddr      string
	serveWatch     bool
	serveOverrides sessionOverrides
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over HTTP for the browser UI",
	Long: `Serve exposes data upload, session settings, chat turns with cancellation and
live progress (server-sent events) over HTTP. Each browser gets its own
workspace. With -p, new workspaces start with that project's data, and --watch
reloads it when the files change on disk.`,
	Example: `  surveyloom serve
  surveyloom serve -p wave1 --watch --addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		var p *project.Project
		var store *dataset.Store
		if serveProject != "" {
			var err error
			if p, err = openProject(serveProject); err != nil {
				return err
			}
			if store, err = projectStore(p); err != nil {
				return err
			}
		} else if serveWatch {
			return fmt.Errorf("--watch requires --project")
		}

		b, err := newControllerBuilder(p, serveOverrides, logger)
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" && cfg != nil {
			addr = cfg.ServerAddr
		}
		if addr == "" {
			addr = ":8080"
		}
		scfg := server.Config{
			Addr:          addr,
			Logger:        logger,
			Personas:      b.personas,
			NewController: b.open,
			Store:         store,
		}
		global := cfg
		if global == nil {
			global = &cfgpkg.Global{}
		}
		secret, generated, err := global.EnsureSessionSecret()
		if err != nil {
			return err
		}
		if generated {
			logger.Warn("no session_secret configured; browser sessions will not survive a restart")
		}
		scfg.SessionSecret = secret
		scfg.AllowedOrigins = global.AllowedOrigins
		if serveWatch && p != nil {
			scfg.Watch = true
			scfg.WatchFiles = p.WatchFiles()
			scfg.Reload = p.LoadStore
		}

		srv, err := server.New(scfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Listening on %s\n", addr)
		return srv.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveProject, "project", "p", "", "project whose data new browser workspaces start with")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config server_addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the project's data files when they change")
	bindSessionFlags(serveCmd, &serveOverrides)
}
