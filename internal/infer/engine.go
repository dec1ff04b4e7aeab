// Package infer turns a batch of captured exchanges into a catalog of
// generalized routes.
//
// The pipeline is: variant profiles per (method, literal path), candidate
// templates for the keys that may be generalized, backfill of every record
// onto its final template, then per-route parameter domains and
// representative examples. It does no I/O and keeps no state between runs.
package infer

import (
	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/pkg/types"
)

type Engine struct {
	config *Config
}

func NewEngine(opts ...Option) *Engine {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Engine{config: config}
}

// Run infers the catalog for records, which must already be qualified.
// The input is not modified.
func (e *Engine) Run(records []types.TrafficRecord) *types.Catalog {
	catalog := &types.Catalog{Records: len(records), Routes: []types.RouteSummary{}}
	if len(records) == 0 {
		return catalog
	}

	profiles := BuildProfiles(records)
	generalized := 0
	for _, p := range profiles {
		if p.Generalizes() {
			generalized++
		}
	}
	groups := Resolve(records, CandidatePaths(records, profiles), e.config.Logger)
	for _, g := range groups {
		catalog.Routes = append(catalog.Routes, Synthesize(g, e.config))
	}

	e.config.Logger.WithFields(logrus.Fields{
		"records":     len(records),
		"route_keys":  len(profiles),
		"generalized": generalized,
		"routes":      len(catalog.Routes),
	}).Info("inference complete")
	return catalog
}
