package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/internal/crawl"
	"github.com/yourorg/apiscout/internal/logging"
	"github.com/yourorg/apiscout/internal/metrics"
	"github.com/yourorg/apiscout/internal/pipeline"
	"github.com/yourorg/apiscout/internal/render"
	"github.com/yourorg/apiscout/internal/server"
	"github.com/yourorg/apiscout/internal/store"
	"github.com/yourorg/apiscout/internal/watch"
	"github.com/yourorg/apiscout/pkg/types"
)

const defaultConfigContent = `inference:
  multiples_threshold: 0.8
  arithmetic_threshold: 0.8
  response_sample_size: 3

filter:
  success_statuses:
    - 200
  # Every 200 response with a body is analyzed unless a rule below drops it.
  # ignore_extensions: [.js, .css, .png, .jpg, .jpeg, .gif, .svg, .woff, .woff2, .ico, .map, .pdf]
  # ignore_paths: [/static/, /assets/, /favicon]
  # ignore_substrings: [mc.yandex]

sanitize:
  query_params:
    - token
    - access_token
    - api_key
    - apikey
    - key
    - signature
  body_fields:
    - password
    - secret
    - token
    - api_key
    - access_token
    - refresh_token
    - credential
  replacement: "***REDACTED***"

output:
  dir: "./output"
  formats:
    - text
    - markdown
    - openapi

server:
  host: "127.0.0.1"
  port: 3000
  cors_origin: "*"
  max_body_mb: 32

capture:
  workers: 5
  max_pages: 10000
  page_timeout: 20s
  deadline: 30m
  skip_extensions:
    - .svg
    - .pdf
    - .jpg
    - .jpeg
  ignore_substrings:
    - mc.yandex
    - .svg

log:
  level: "info"
  format: "text"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every command shares once flags are parsed.
type app struct {
	cfgPath string
	verbose bool

	cfg     *config.Config
	log     *logrus.Logger
	metrics *metrics.Collector
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Log, cmd.ErrOrStderr())
	a.metrics = metrics.New()
	return nil
}

func (a *app) openStore() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return store.NewSQLiteStore(a.cfg.Store.Path)
}

func (a *app) options(st store.Store, progress pipeline.ProgressFunc) pipeline.Options {
	return pipeline.Options{
		Config:   a.cfg,
		Logger:   a.log,
		Metrics:  a.metrics,
		Store:    st,
		Render:   true,
		Progress: progress,
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "apiscout",
		Short:         "Infer an API catalog from captured browser traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file path (default ~/.apiscout/config.yaml)")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newCaptureCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newShowCmd(a))
	root.AddCommand(newDeleteCmd(a))
	root.AddCommand(newReanalyzeCmd(a))

	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.apiscout directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".apiscout")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "apiscout.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			return nil
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		save    bool
		formats []string
		output  string
	)
	cmd := &cobra.Command{
		Use:     "analyze <artifact>",
		Short:   "Infer the route catalog of a capture artifact (.jsonl or .har)",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(formats) > 0 {
				a.cfg.Output.Formats = formats
			}
			if output != "" {
				a.cfg.Output.Dir = output
			}
			if err := a.cfg.ValidateOutput(); err != nil {
				return err
			}

			var st store.Store
			if save {
				s, err := a.openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				st = s
			}
			res, err := pipeline.Analyze(args[0], a.options(st, progressTo(a.log)))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the records and catalog as a session")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "output formats: text, json, markdown, openapi")
	cmd.Flags().StringVar(&output, "output", "", "output directory")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch <artifact>",
		Short:   "Re-analyze the artifact every time it changes",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateOutput(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := &watch.Watcher{
				Path: args[0],
				Log:  a.log,
				Run: func(context.Context) error {
					res, err := pipeline.Analyze(args[0], a.options(nil, nil))
					if err != nil {
						return err
					}
					a.log.WithFields(logrus.Fields{
						"routes":  len(res.Catalog.Routes),
						"written": res.Written,
					}).Info("catalog written")
					return nil
				},
			}
			return w.Watch(ctx)
		},
	}
	return cmd
}

func newCaptureCmd(a *app) *cobra.Command {
	var (
		output  string
		workers int
		analyze bool
	)
	cmd := &cobra.Command{
		Use:     "capture <start-url>",
		Short:   "Crawl a site in headless Chrome and record its xhr/fetch traffic",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			startURL := args[0]
			if workers > 0 {
				a.cfg.Capture.Workers = workers
			}
			if output == "" {
				output = a.cfg.Capture.Output
			}
			if output == "" {
				output = crawl.ArtifactName(startURL)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			browser, err := crawl.NewChromeBrowser(ctx, 0, a.log)
			if err != nil {
				return err
			}
			defer browser.Close()
			sink, err := crawl.CreateSink(output)
			if err != nil {
				return err
			}

			sched := crawl.NewScheduler(a.cfg.Capture, browser, sink, a.log, a.metrics)
			stats, runErr := sched.Run(ctx, startURL)
			if err := sink.Close(); err != nil && runErr == nil {
				runErr = err
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured %d exchanges from %d pages into %s\n", stats.Exchanges, stats.Pages, output)

			if !analyze {
				return nil
			}
			if err := a.cfg.ValidateOutput(); err != nil {
				return err
			}
			res, err := pipeline.Analyze(output, a.options(nil, progressTo(a.log)))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "capture artifact path (default derived from the start url)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent browser tabs")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "analyze the artifact once the crawl ends")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the preview UI and API",
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			srv, err := server.New(a.cfg, st, a.log, a.metrics)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
			a.log.WithField("addr", "http://"+addr).Info("serving")
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List all sessions",
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			sessions, err := st.ListSessions()
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), sessions)
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	var session, format string
	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Show the catalog of a session",
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			catalog, err := st.GetCatalog(session)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), catalog, format)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	cmd.Flags().StringVar(&format, "format", "text", "text, json, markdown or openapi")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:     "delete",
		Short:   "Delete session",
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if _, err := st.GetSession(session); err != nil {
				return err
			}
			if err := st.DeleteSession(session); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", session)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newReanalyzeCmd(a *app) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:     "reanalyze",
		Short:   "Re-run inference over the stored records of a session",
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			opts := a.options(st, progressTo(a.log))
			opts.Render = false
			res, err := pipeline.Reanalyze(session, opts)
			if err != nil {
				return err
			}
			return render.Text(cmd.OutOrStdout(), res.Catalog)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func progressTo(log logrus.FieldLogger) pipeline.ProgressFunc {
	return func(stage string) { log.Debug(stage) }
}

func printResult(w io.Writer, res *pipeline.Result) error {
	if err := render.Text(w, res.Catalog); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d routes from %d records (%d kept, %d malformed lines)\n",
		len(res.Catalog.Routes), res.Load.Decoded, res.Filter.Kept, res.Load.Malformed)
	if res.Session != nil {
		fmt.Fprintln(w, "session", res.Session.ID)
	}
	for _, p := range res.Written {
		fmt.Fprintln(w, "wrote", p)
	}
	return nil
}

func printSessions(w io.Writer, sessions []types.Session) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tHOST\tSOURCE\tRECORDS\tROUTES\tSTATUS\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID, s.Host, s.Source, s.RecordCount, s.RouteCount, s.Status, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func printCatalog(w io.Writer, c *types.Catalog, format string) error {
	switch strings.ToLower(format) {
	case "json":
		return render.JSON(w, c)
	case "markdown":
		_, err := io.WriteString(w, render.Markdown(c))
		return err
	case "openapi":
		data, err := render.OpenAPI(c)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "text", "":
		return render.Text(w, c)
	}
	return fmt.Errorf("unsupported format %q", format)
}
