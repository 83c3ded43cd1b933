package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ctxnav/internal/dom"
	"ctxnav/internal/logging"
	"ctxnav/internal/navigation"
	"ctxnav/internal/outline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var (
	resolveOutline     bool
	resolveAll         bool
	resolveClicks      []string
	resolveBaseURL     string
	resolveMaxInFlight int
	resolveMetricsFile string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [file|url]",
	Short: "Resolve every context navigation mount point of a page",
	Long: `Loads an HTML page, starts one disclosure engine per mount point, waits for
the whole disclosure tree to settle and prints the resulting document.

Engines whose request failed stay pending with their placeholder in place;
they are reported on stderr and make the command exit non-zero.

Example:
  ctxnav resolve http://localhost:8080/page/abc789 --outline
  ctxnav resolve page.html --base-url https://archives.example.org --click abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveOutline, "outline", false, "Print a text outline instead of HTML")
	resolveCmd.Flags().BoolVar(&resolveAll, "all", false, "Include collapsed items in the outline")
	resolveCmd.Flags().StringArrayVar(&resolveClicks, "click", nil, "Drill into the children of a document id after resolving (repeatable)")
	resolveCmd.Flags().StringVar(&resolveBaseURL, "base-url", "", "Base URL for relative fetch paths (overrides config)")
	resolveCmd.Flags().IntVar(&resolveMaxInFlight, "max-in-flight", -1, "Bound concurrent requests (overrides config, 0 = unbounded)")
	resolveCmd.Flags().StringVar(&resolveMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile when done (overrides config)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := args[0]
	fetcher := navigation.NewHTTPFetcher(nil)
	fetcher.UserAgent = cfg.Fetch.UserAgent
	fetcher.MaxBodyBytes = cfg.Fetch.MaxBodyBytes
	fetcher.Timeout = cfg.GetFetchTimeout()
	fetcher.Logger = logging.Get(logging.CategoryFetch)

	root, pageURL, err := loadPage(ctx, fetcher, source)
	if err != nil {
		return err
	}

	base, err := resolveBase(pageURL)
	if err != nil {
		return err
	}

	maxInFlight := cfg.Engine.MaxInFlight
	if resolveMaxInFlight >= 0 {
		maxInFlight = resolveMaxInFlight
	}

	reg := prometheus.NewRegistry()
	page := navigation.NewPage(root, fetcher,
		navigation.WithLogger(logging.Get(logging.CategoryEngine)),
		navigation.WithMetrics(navigation.NewMetrics(reg)),
		navigation.WithBaseURL(base),
		navigation.WithMaxInFlight(maxInFlight),
		navigation.WithLabels(cfg.Engine.CollapseLabel, cfg.Engine.ExpandLabel),
	)

	if _, err := navigation.Bootstrap(ctx, page); err != nil {
		logger.Warn("Some mount points were rejected", zap.Error(err))
	}
	page.Wait()

	for _, id := range resolveClicks {
		if !clickViewChildren(ctx, page, id) {
			return fmt.Errorf("no drill-down control for %q", id)
		}
		page.Wait()
	}

	out := cmd.OutOrStdout()
	if resolveOutline {
		var text string
		page.Do(func(root *html.Node) {
			text = outline.Render(root, outline.Options{
				ShowCollapsed: resolveAll,
				Styles:        outline.DefaultStyles(out),
			})
		})
		fmt.Fprint(out, text)
	} else {
		rendered, err := page.Render()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, rendered)
	}

	metricsFile := cfg.Metrics.File
	if resolveMetricsFile != "" {
		metricsFile = resolveMetricsFile
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			logger.Warn("Failed to write metrics", zap.Error(err))
		}
	}

	return reportUnsettled(cmd, page.Engines())
}

// loadPage reads the page from a file or fetches it.
func loadPage(ctx context.Context, f navigation.Fetcher, source string) (*html.Node, *url.URL, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid page url: %w", err)
		}
		body, err := f.Fetch(ctx, source)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch page: %w", err)
		}
		root, err := dom.ParseString(body)
		return root, u, err
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer file.Close()
	root, err := dom.Parse(file)
	return root, nil, err
}

// resolveBase picks the flag, then config, then the page's own origin.
func resolveBase(pageURL *url.URL) (*url.URL, error) {
	if resolveBaseURL != "" {
		u, err := url.Parse(resolveBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid --base-url %q", resolveBaseURL)
		}
		return u, nil
	}
	if u, err := cfg.GetBaseURL(); err != nil || u != nil {
		return u, err
	}
	if pageURL != nil {
		return &url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host}, nil
	}
	return nil, nil
}

// clickViewChildren clicks the drill-down control targeting id's children.
func clickViewChildren(ctx context.Context, page *navigation.Page, id string) bool {
	href := "#" + id
	if !strings.HasPrefix(id, "collapsible-hierarchy-") {
		href = "#collapsible-hierarchy-" + id
	}
	var ctl *html.Node
	page.Do(func(root *html.Node) {
		for _, n := range dom.ByAttrValue(root, "href", href) {
			if dom.HasClass(n, navigation.ViewChildrenClass) {
				ctl = n
				return
			}
		}
	})
	if ctl == nil {
		return false
	}
	return page.Click(ctx, ctl)
}

func reportUnsettled(cmd *cobra.Command, engines []*navigation.Engine) error {
	var errs []error
	for _, e := range engines {
		switch e.State() {
		case navigation.StateStalled, navigation.StateFailed:
			rc := e.Context()
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: level %d under %q: %v\n",
				e.State(), rc.Mount.Level, rc.RequestParent(), e.Err())
			errs = append(errs, e.Err())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d engines did not render: %w", len(errs), len(engines), errors.Join(errs...))
	}
	return nil
}
