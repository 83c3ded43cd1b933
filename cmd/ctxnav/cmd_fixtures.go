package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctxnav/internal/fixture"
	"ctxnav/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fixturesFile  string
	fixturesAddr  string
	fixturesWatch bool
)

// fixturesCmd groups fixture collaborator commands
var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Fixture collection context server for development and tests",
}

var fixturesServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve collection context fragments from a YAML tree",
	Long: `Serves GET /catalog with the collection context query contract, plus
/page/<document-id> viewing pages, /healthz and /metrics.

Example:
  ctxnav fixtures serve --file testdata/tree.yaml --addr :8080 --watch`,
	RunE: runFixturesServe,
}

func init() {
	fixturesServeCmd.Flags().StringVarP(&fixturesFile, "file", "f", "", "YAML fixture tree (overrides config)")
	fixturesServeCmd.Flags().StringVar(&fixturesAddr, "addr", "", "Listen address (overrides config)")
	fixturesServeCmd.Flags().BoolVar(&fixturesWatch, "watch", false, "Reload the tree when the file changes")
	fixturesCmd.AddCommand(fixturesServeCmd)
}

func buildFixtureServer(path string) (*fixture.Server, error) {
	tree, err := fixture.LoadTree(path)
	if err != nil {
		return nil, err
	}
	return fixture.NewServer(tree, fixture.Options{
		CacheSize: cfg.Fixtures.CacheSize,
		Labels:    fixture.Labels{Collapse: cfg.Engine.CollapseLabel, Expand: cfg.Engine.ExpandLabel},
		Logger:    logging.Get(logging.CategoryFixture),
	})
}

func runFixturesServe(cmd *cobra.Command, args []string) error {
	path := cfg.Fixtures.Path
	if fixturesFile != "" {
		path = fixturesFile
	}
	if path == "" {
		return fmt.Errorf("a fixture tree is required (--file or fixtures.path)")
	}
	addr := cfg.Fixtures.Addr
	if fixturesAddr != "" {
		addr = fixturesAddr
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := buildFixtureServer(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fixturesWatch || cfg.Fixtures.Watch {
		go func() {
			if err := fixture.Watch(ctx, srv, path); err != nil {
				logger.Warn("Fixture watcher stopped", zap.Error(err))
			}
		}()
	}

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("Fixture server listening", zap.String("addr", addr), zap.String("tree", path))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
