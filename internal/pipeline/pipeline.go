// Package pipeline wires loading, qualification, inference, redaction,
// persistence and rendering into one analysis run.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/internal/filter"
	"github.com/yourorg/apiscout/internal/har"
	"github.com/yourorg/apiscout/internal/infer"
	"github.com/yourorg/apiscout/internal/loader"
	"github.com/yourorg/apiscout/internal/logging"
	"github.com/yourorg/apiscout/internal/metrics"
	"github.com/yourorg/apiscout/internal/render"
	"github.com/yourorg/apiscout/internal/store"
	"github.com/yourorg/apiscout/pkg/types"
)

// ProgressFunc reports analysis progress.
type ProgressFunc func(stage string)

// Options carries the collaborators of a run. Only Config is required.
type Options struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	Metrics  *metrics.Collector
	Store    store.Store
	Render   bool
	Progress ProgressFunc
}

// Result is the outcome of a run. Catalog is the redacted, publishable
// catalog.
type Result struct {
	Catalog *types.Catalog
	Load    loader.Stats
	Filter  filter.Report
	Session *types.Session
	Written []string
}

// LoadSource reads a capture artifact, or a HAR file when the extension
// says so.
func LoadSource(path string, log logrus.FieldLogger) ([]types.TrafficRecord, loader.Stats, error) {
	if strings.EqualFold(filepath.Ext(path), ".har") {
		records, err := har.Parse(path)
		if err != nil {
			return nil, loader.Stats{}, fmt.Errorf("parse har: %w", err)
		}
		return records, loader.Stats{Lines: len(records), Decoded: len(records)}, nil
	}
	return loader.Load(path, log)
}

// Analyze runs the whole pipeline over the artifact at path.
func Analyze(path string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	report(opts.Progress, "loading "+path)
	records, stats, err := LoadSource(path, opts.Logger)
	if err != nil {
		opts.observeRun(nil, start, err)
		return nil, err
	}
	res, err := Run(path, records, stats, opts)
	if err != nil {
		opts.observeRun(nil, start, err)
		return nil, err
	}
	opts.observeRun(res.Catalog, start, nil)
	return res, nil
}

// Run analyzes already decoded records. source names where they came from.
func Run(source string, records []types.TrafficRecord, stats loader.Stats, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	cfg := opts.Config
	if opts.Metrics != nil {
		opts.Metrics.ObserveLoad(stats.Decoded, stats.Malformed)
	}

	report(opts.Progress, "filtering records")
	kept, freport := filter.Apply(records, cfg.Filter)
	if opts.Metrics != nil {
		opts.Metrics.ObserveFilter(freport.Kept, freport.Dropped)
	}
	opts.Logger.WithFields(logrus.Fields{
		"decoded":   stats.Decoded,
		"malformed": stats.Malformed,
		"kept":      freport.Kept,
		"dropped":   freport.Dropped,
	}).Info("records qualified")

	report(opts.Progress, "inferring routes")
	engine := infer.NewEngine(append(infer.FromConfig(cfg.Inference), infer.WithLogger(opts.Logger))...)
	raw := engine.Run(kept)
	raw.Source = source

	report(opts.Progress, "sanitizing examples")
	catalog := filter.Sanitize(raw, cfg.Sanitize)
	res := &Result{Catalog: catalog, Load: stats, Filter: freport}

	if opts.Store != nil {
		report(opts.Progress, "saving session")
		sess, err := persist(opts.Store, source, kept, catalog)
		if err != nil {
			return nil, err
		}
		res.Session = sess
	}

	if opts.Render {
		report(opts.Progress, "rendering outputs")
		written, err := render.WriteAll(catalog, cfg.Output.Dir, cfg.Output.Formats)
		if err != nil {
			return nil, err
		}
		res.Written = written
	}
	return res, nil
}

func persist(st store.Store, source string, kept []types.TrafficRecord, catalog *types.Catalog) (*types.Session, error) {
	sess, err := st.CreateSession(source, catalog.Host())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := st.SaveRecords(sess.ID, kept); err != nil {
		_ = st.UpdateSessionStatus(sess.ID, store.StatusFailed)
		return nil, fmt.Errorf("save records: %w", err)
	}
	if err := st.SaveCatalog(sess.ID, catalog); err != nil {
		_ = st.UpdateSessionStatus(sess.ID, store.StatusFailed)
		return nil, fmt.Errorf("save catalog: %w", err)
	}
	return st.GetSession(sess.ID)
}

// Reanalyze re-runs inference over the records stored for a session and
// replaces its catalog.
func Reanalyze(sessionID string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	sess, err := opts.Store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	records, err := opts.Store.GetRecords(sessionID)
	if err != nil {
		return nil, err
	}
	noStore := opts
	noStore.Store = nil
	res, err := Run(sess.Source, records, loader.Stats{Lines: len(records), Decoded: len(records)}, noStore)
	if err != nil {
		return nil, err
	}
	if err := opts.Store.SaveCatalog(sessionID, res.Catalog); err != nil {
		return nil, err
	}
	if res.Session, err = opts.Store.GetSession(sessionID); err != nil {
		return nil, err
	}
	return res, nil
}

func (o Options) withDefaults() Options {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

func (o Options) observeRun(c *types.Catalog, start time.Time, err error) {
	if o.Metrics == nil {
		return
	}
	routes, ambiguous := 0, 0
	if c != nil {
		routes = len(c.Routes)
		for _, r := range c.Routes {
			if len(r.AmbiguousWith) > 0 {
				ambiguous++
			}
		}
	}
	o.Metrics.ObserveRun(routes, ambiguous, time.Since(start), err)
}

func report(fn ProgressFunc, msg string) {
	if fn != nil {
		fn(msg)
	}
}
