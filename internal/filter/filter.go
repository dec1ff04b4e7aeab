// Package filter decides which captured exchanges qualify for inference
// and redacts sensitive values in a published catalog.
package filter

import (
	"path"
	"slices"
	"strings"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/pkg/types"
)

// FilterConfig is an alias of config.FilterConfig.
type FilterConfig = config.FilterConfig

// Drop reasons reported by Apply.
const (
	ReasonStatus        = "status"
	ReasonEmptyResponse = "empty_response"
	ReasonOptions       = "options"
	ReasonExtension     = "extension"
	ReasonPath          = "path"
	ReasonSubstring     = "substring"
)

// Report counts kept records and dropped ones per reason.
type Report struct {
	Kept    int            `json:"kept"`
	Dropped map[string]int `json:"dropped"`
}

// Total is the number of records Apply saw.
func (r Report) Total() int {
	n := r.Kept
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// Apply keeps the records that qualify: a success status, a response body
// with content, and none of the ignore rules hit. Order is preserved.
func Apply(records []types.TrafficRecord, cfg FilterConfig) ([]types.TrafficRecord, Report) {
	report := Report{Dropped: map[string]int{}}
	kept := make([]types.TrafficRecord, 0, len(records))
	for _, rec := range records {
		if reason := dropReason(rec, cfg); reason != "" {
			report.Dropped[reason]++
			continue
		}
		kept = append(kept, rec)
	}
	report.Kept = len(kept)
	return kept, report
}

func dropReason(rec types.TrafficRecord, cfg FilterConfig) string {
	switch {
	case !slices.Contains(cfg.SuccessStatuses, rec.StatusCode):
		return ReasonStatus
	case !rec.ResponseBody.Truthy():
		return ReasonEmptyResponse
	case strings.EqualFold(rec.Method, "OPTIONS"):
		return ReasonOptions
	case hasIgnoredExtension(rec.Path, cfg.IgnoreExtensions):
		return ReasonExtension
	case hasIgnoredPath(rec.Path, cfg.IgnorePaths):
		return ReasonPath
	case containsIgnored(rec.URL, cfg.IgnoreSubstrings):
		return ReasonSubstring
	}
	return ""
}

func hasIgnoredExtension(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(strings.TrimSpace(e)) == ext {
			return true
		}
	}
	return false
}

func hasIgnoredPath(p string, prefixes []string) bool {
	for _, pref := range prefixes {
		pref = strings.TrimSpace(pref)
		if pref == "" {
			continue
		}
		if strings.HasPrefix(p, pref) {
			return true
		}
	}
	return false
}

func containsIgnored(u string, needles []string) bool {
	for _, n := range needles {
		if n = strings.TrimSpace(n); n != "" && strings.Contains(u, n) {
			return true
		}
	}
	return false
}
