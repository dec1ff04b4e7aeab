// Package loader reads the newline-delimited capture artifact and turns
// each line into a normalized traffic record.
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/pkg/types"
)

// LineError describes one capture line that could not be used.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

var errNotObject = errors.New("line is not a JSON object")

// Stats counts what a load saw.
type Stats struct {
	Lines     int `json:"lines"`
	Malformed int `json:"malformed"`
	Decoded   int `json:"decoded"`
}

// Entry is the wire form of one capture line.
type Entry struct {
	URL          string      `json:"url"`
	Method       string      `json:"method"`
	Status       int         `json:"status"`
	RequestBody  types.Value `json:"request_body"`
	ResponseBody types.Value `json:"response_body"`
	Page         string      `json:"page,omitempty"`
}

// Load reads the artifact at path. A missing artifact is not an error: it
// yields no records.
func Load(path string, log logrus.FieldLogger) ([]types.TrafficRecord, Stats, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Info("capture artifact not found, nothing to analyze")
		return nil, Stats{}, nil
	}
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return Decode(f, log)
}

// Decode parses every line independently. Malformed lines are logged and
// skipped; only read failures abort. Output order is capture order.
func Decode(r io.Reader, log logrus.FieldLogger) ([]types.TrafficRecord, Stats, error) {
	var (
		stats   Stats
		records []types.TrafficRecord
	)
	br := bufio.NewReader(r)
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			stats.Lines++
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				rec, err := decodeLine(line)
				if err != nil {
					stats.Malformed++
					lerr := &LineError{Line: stats.Lines, Err: err}
					log.WithFields(logrus.Fields{"line": lerr.Line, "preview": preview(line)}).
						WithError(lerr.Err).Warn("skipping corrupted capture line")
				} else {
					stats.Decoded++
					rec.Seq = stats.Decoded
					records = append(records, rec)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return records, stats, fmt.Errorf("read capture: %w", readErr)
		}
	}
	return records, stats, nil
}

func decodeLine(line []byte) (types.TrafficRecord, error) {
	if line[0] != '{' {
		return types.TrafficRecord{}, errNotObject
	}
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return types.TrafficRecord{}, err
	}
	return Normalize(e)
}

// Normalize decomposes the entry URL and converts the request body at the
// boundary.
func Normalize(e Entry) (types.TrafficRecord, error) {
	u, err := url.Parse(strings.TrimSpace(e.URL))
	if err != nil {
		return types.TrafficRecord{}, fmt.Errorf("parse url: %w", err)
	}
	path := u.EscapedPath()
	return types.TrafficRecord{
		Method:       strings.ToUpper(strings.TrimSpace(e.Method)),
		URL:          e.URL,
		Scheme:       u.Scheme,
		Host:         u.Host,
		Path:         path,
		Query:        ParseQuery(u.RawQuery),
		Fragment:     u.Fragment,
		Segments:     types.SplitPath(path),
		RequestBody:  RequestBody(e.RequestBody),
		ResponseBody: e.ResponseBody,
		StatusCode:   e.Status,
		Page:         e.Page,
	}, nil
}

// ParseQuery parses a raw query, dropping blank values and keys left with
// no values. Undecodable pairs are ignored.
func ParseQuery(raw string) map[string][]string {
	if raw == "" {
		return nil
	}
	parsed, _ := url.ParseQuery(raw)
	out := make(map[string][]string, len(parsed))
	for k, vs := range parsed {
		var kept []string
		for _, v := range vs {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			out[k] = kept
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// RequestBody converts a body captured as raw text into structure: embedded
// JSON is decoded, form-urlencoded text becomes an object of first values,
// and the empty string means no body.
func RequestBody(v types.Value) types.Value {
	if v.Kind() != types.KindString {
		return v
	}
	s := strings.TrimSpace(v.Text())
	if s == "" {
		return types.Null()
	}
	if s[0] == '{' || s[0] == '[' {
		if parsed, err := types.Parse([]byte(s)); err == nil {
			return parsed
		}
	}
	if form, ok := parseForm(s); ok {
		return form
	}
	return v
}

func parseForm(s string) (types.Value, bool) {
	if !strings.Contains(s, "=") || strings.ContainsAny(s, " \t\n") {
		return types.Value{}, false
	}
	values, err := url.ParseQuery(s)
	if err != nil || len(values) == 0 {
		return types.Value{}, false
	}
	fields := make(map[string]any, len(values))
	for k, vs := range values {
		if k == "" {
			return types.Value{}, false
		}
		fields[k] = vs[0]
	}
	return types.FromInterface(fields), true
}

func preview(line []byte) string {
	const limit = 50
	if len(line) > limit {
		return string(line[:limit])
	}
	return string(line)
}
