// Package render prints a route catalog as plain text, JSON, Markdown or
// an OpenAPI 3.0 document.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourorg/apiscout/pkg/types"
)

// Output file names per format.
const (
	TextFile     = "catalog.txt"
	JSONFile     = "catalog.json"
	MarkdownFile = "api-docs.md"
	OpenAPIFile  = "openapi.yaml"
)

// Text writes one block per route, busiest first.
func Text(w io.Writer, c *types.Catalog) error {
	if c == nil {
		return fmt.Errorf("catalog is nil")
	}
	b := &strings.Builder{}
	for i, r := range c.Routes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%s  (%d records)\n", r.Key(), r.Stats.Count)
		fmt.Fprintf(b, "  url:       %s\n", r.URL)
		for _, p := range r.Params {
			fmt.Fprintf(b, "  param:     %s\n", p.String())
		}
		if len(r.Query) > 0 {
			fmt.Fprintf(b, "  query:     %s\n", url.Values(r.Query).Encode())
		}
		if !r.Body.IsNull() {
			fmt.Fprintf(b, "  request:   %s\n", r.Body.String())
		}
		fmt.Fprintf(b, "  response:  %s\n", r.Response.Description())
		fmt.Fprintf(b, "  variants:  responses=%d query=%d body=%d paths=%d\n",
			r.Stats.ResponsesUnique, r.Stats.QueryVariants, r.Stats.BodyVariants, r.Stats.PathVariants)
		if len(r.AmbiguousWith) > 0 {
			fmt.Fprintf(b, "  ambiguous: %s\n", strings.Join(r.AmbiguousWith, ", "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes the catalog as indented JSON.
func JSON(w io.Writer, c *types.Catalog) error {
	if c == nil {
		return fmt.Errorf("catalog is nil")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(c)
}

// WriteAll renders every requested format into outputDir and returns the
// written paths.
func WriteAll(c *types.Catalog, outputDir string, formats []string) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, format := range formats {
		var (
			name string
			data []byte
			err  error
		)
		switch strings.ToLower(format) {
		case "text":
			name = TextFile
			data, err = toBytes(c, Text)
		case "json":
			name = JSONFile
			data, err = toBytes(c, JSON)
		case "markdown":
			name = MarkdownFile
			data = []byte(Markdown(c))
		case "openapi":
			name = OpenAPIFile
			data, err = OpenAPI(c)
			if err == nil {
				if problems := ValidateOpenAPI(data); len(problems) > 0 {
					err = fmt.Errorf("invalid document: %s", strings.Join(problems, "; "))
				}
			}
		default:
			return written, fmt.Errorf("unsupported format %q", format)
		}
		if err != nil {
			return written, fmt.Errorf("render %s: %w", format, err)
		}
		p := filepath.Join(outputDir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

func toBytes(c *types.Catalog, fn func(io.Writer, *types.Catalog) error) ([]byte, error) {
	b := &strings.Builder{}
	if err := fn(b, c); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
