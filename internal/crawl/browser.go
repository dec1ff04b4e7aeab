package crawl

import (
	"context"
	"strings"

	"github.com/yourorg/apiscout/pkg/types"
)

// Exchange is one xhr or fetch call observed while a page loaded.
type Exchange struct {
	URL          string
	Method       string
	Status       int
	RequestBody  types.Value
	ResponseBody types.Value
}

// Page is what a browser saw at one URL.
type Page struct {
	URL       string
	HTML      string
	Exchanges []Exchange
}

// Browser loads pages. Visit must honor ctx for its deadline and must be
// safe for concurrent use.
type Browser interface {
	Visit(ctx context.Context, pageURL string) (*Page, error)
	Close() error
}

// bodyValue decodes a raw payload as JSON when it parses and keeps it as
// text otherwise. An empty payload is no body.
func bodyValue(raw []byte) types.Value {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return types.Null()
	}
	if v, err := types.Parse([]byte(s)); err == nil {
		return v
	}
	return types.String(string(raw))
}
