package types

import (
	"strings"
	"time"
)

// TrafficRecord is one captured request/response exchange after URL
// decomposition.
type TrafficRecord struct {
	Seq          int                 `json:"seq"`
	Method       string              `json:"method"`
	URL          string              `json:"url"`
	Scheme       string              `json:"scheme"`
	Host         string              `json:"host"`
	Path         string              `json:"path"`
	Query        map[string][]string `json:"query,omitempty"`
	Fragment     string              `json:"fragment,omitempty"`
	Segments     []string            `json:"segments"`
	RequestBody  Value               `json:"request_body"`
	ResponseBody Value               `json:"response_body"`
	StatusCode   int                 `json:"status"`
	Page         string              `json:"page,omitempty"`
}

// Session records one stored catalog snapshot.
type Session struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Host        string    `json:"host"`
	RecordCount int       `json:"record_count"`
	RouteCount  int       `json:"route_count"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SplitPath breaks a URL path into its positional segments, ignoring
// leading and trailing slashes. The root path has no segments.
func SplitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return []string{}
	}
	return strings.Split(p, "/")
}
