package crawl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/yourorg/apiscout/internal/loader"
)

// Sink appends capture lines. It is safe for concurrent use.
type Sink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewSink writes lines to w.
func NewSink(w io.Writer) *Sink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Sink{enc: enc}
}

// CreateSink truncates or creates the artifact at path.
func CreateSink(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture artifact: %w", err)
	}
	s := NewSink(f)
	s.closer = f
	return s, nil
}

// WriteExchange records one exchange seen on page.
func (s *Sink) WriteExchange(page string, ex Exchange) error {
	return s.write(loader.Entry{
		URL:          ex.URL,
		Method:       ex.Method,
		Status:       ex.Status,
		RequestBody:  ex.RequestBody,
		ResponseBody: ex.ResponseBody,
		Page:         page,
	})
}

// WritePage records a page that was listed but not loaded.
func (s *Sink) WritePage(page string) error {
	return s.write(struct {
		Page string `json:"page"`
	}{Page: page})
}

func (s *Sink) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(v)
}

func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
