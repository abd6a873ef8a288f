// Command starmcp is the host process: it loads *.star extension scripts
// from a directory, exposes their declared tools over MCP (stdio JSON-RPC),
// and reloads them live as the directory changes. With --test it instead
// runs every *_test.star file and reports pass/fail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"starmcp-go/internal/capability"
	"starmcp-go/internal/config"
	"starmcp-go/internal/dispatch"
	"starmcp-go/internal/events"
	"starmcp-go/internal/loader"
	"starmcp-go/internal/logging"
	"starmcp-go/internal/mcpadapter"
	"starmcp-go/internal/registry"
	"starmcp-go/internal/scripthost"
	"starmcp-go/internal/status"
	"starmcp-go/internal/testrunner"
)

const version = "0.1.0"

var (
	extensionsDir string
	testMode      bool
	showVersion   bool
	logLevel      string
	debugAddr     string
	configFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "starmcp",
		Short:         "Run an MCP server whose tools are defined by Starlark-dialect extension scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.PersistentFlags().StringVarP(&extensionsDir, "extensions-dir", "e", "", "directory of .star extension scripts (default ./extensions)")
	root.PersistentFlags().BoolVarP(&testMode, "test", "t", false, "run *_test.star files instead of serving")
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "print version and exit")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	root.PersistentFlags().StringVar(&debugAddr, "debug-addr", "", "bind an optional local diagnostics HTTP server (empty disables it)")
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a config file (YAML, JSON, or TOML)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Println("starmcp " + version)
		return nil
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.TestMode {
		return runTests(cfg, logger)
	}
	return serve(cfg, logger)
}

func applyFlagOverrides(cfg *config.Config) {
	if extensionsDir != "" {
		cfg.ExtensionsDir = extensionsDir
	}
	if testMode {
		cfg.TestMode = true
	}
	if debugAddr != "" {
		cfg.DebugAddr = debugAddr
	}
	if logLevel != "" {
		if cfg.Logging == nil {
			cfg.Logging = &config.LogConfig{}
		}
		cfg.Logging.Level = logLevel
	}
}

func runTests(cfg *config.Config, logger *zap.Logger) error {
	host := scripthost.New(capability.TestModules())
	summary, _, err := testrunner.Run(cfg.ExtensionsDir, host, os.Stderr)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
	return nil
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	host := scripthost.New(capability.ServeModules())
	reg := registry.New()
	bus := events.NewBus()
	defer bus.Close()

	ld := loader.New(cfg.ExtensionsDir, loader.ServeMode, host, reg, bus, cfg.DebounceWindow.Duration(), logger)
	ld.InitialLoad()

	disp := dispatch.New(reg, host)
	adapter := mcpadapter.New("starmcp", version, reg, disp, logger)
	adapter.Sync()

	go adapter.WatchEvents(ctx, bus)
	go func() {
		if err := ld.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("extension watcher stopped", zap.Error(err))
		}
	}()

	if cfg.DebugAddr != "" {
		statusSrv := status.New(reg, bus, logger)
		go statusSrv.WatchReloads(ctx.Done())
		go func() {
			if err := statusSrv.ListenAndServe(cfg.DebugAddr); err != nil {
				logger.Warn("status server stopped", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- mcpserver.ServeStdio(adapter.Server) }()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration())
		defer shutdownCancel()
		return adapter.Shutdown(shutdownCtx, cfg.ShutdownTimeout.Duration())
	case err := <-serveErr:
		return err
	}
}
