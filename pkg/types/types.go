package types

import (
	"fmt"
	"strings"
)

// Placeholder types a template segment may carry.
const (
	ParamInt   = "int"
	ParamFloat = "float"
	ParamUUID  = "uuid"
)

// DomainKind classifies the observed values of one path parameter.
type DomainKind string

const (
	DomainConstant      DomainKind = "constant"
	DomainMultipleOf    DomainKind = "multiple_of"
	DomainArithmetic    DomainKind = "arithmetic"
	DomainUnconstrained DomainKind = "unconstrained"
)

// ParameterDomain describes one placeholder of a route template. Step is
// the divisor for multiple_of and the common difference for arithmetic.
type ParameterDomain struct {
	Name     string     `json:"name"`
	Position int        `json:"position"`
	Type     string     `json:"type"`
	Kind     DomainKind `json:"kind"`
	Step     int64      `json:"step,omitempty"`
	Min      *int64     `json:"min,omitempty"`
	Max      *int64     `json:"max,omitempty"`
	Distinct int        `json:"distinct"`
}

func (d ParameterDomain) String() string {
	var rng string
	if d.Min != nil && d.Max != nil {
		rng = fmt.Sprintf(" [%d..%d]", *d.Min, *d.Max)
	}
	switch d.Kind {
	case DomainMultipleOf:
		return fmt.Sprintf("%s: multiple of %d%s", d.Name, d.Step, rng)
	case DomainArithmetic:
		return fmt.Sprintf("%s: step %d%s", d.Name, d.Step, rng)
	case DomainConstant:
		return fmt.Sprintf("%s: constant%s", d.Name, rng)
	}
	return fmt.Sprintf("%s: %s%s", d.Name, d.Type, rng)
}

// FieldType is one top-level response field with its inferred type.
type FieldType struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResponseShape describes the representative response of a route.
type ResponseShape struct {
	Kind   string      `json:"kind"`
	Fields []FieldType `json:"fields,omitempty"`
	Sample []Value     `json:"sample,omitempty"`
	Scalar *Value      `json:"scalar,omitempty"`
}

// Description renders the shape on one line: "id: integer, name: string"
// for objects, the sampled elements for arrays.
func (s ResponseShape) Description() string {
	switch s.Kind {
	case "object":
		parts := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			parts = append(parts, f.Name+": "+f.Type)
		}
		return strings.Join(parts, ", ")
	case "array":
		return Array(s.Sample...).String()
	}
	if s.Scalar != nil {
		return s.Scalar.String()
	}
	return ""
}

// RouteStats are the variant counts of one final route.
type RouteStats struct {
	Count           int `json:"count"`
	ResponsesUnique int `json:"responses_unique"`
	QueryVariants   int `json:"query_variants"`
	BodyVariants    int `json:"body_variants"`
	PathVariants    int `json:"path_variants"`
}

// RouteSummary is the published description of one discovered route.
type RouteSummary struct {
	Method        string              `json:"method"`
	URL           string              `json:"url"`
	Template      string              `json:"template"`
	Params        []ParameterDomain   `json:"params,omitempty"`
	Query         map[string][]string `json:"query,omitempty"`
	Body          Value               `json:"request"`
	Response      ResponseShape       `json:"typical_response"`
	Stats         RouteStats          `json:"stats"`
	AmbiguousWith []string            `json:"ambiguous_with,omitempty"`
}

// Key is "METHOD /template".
func (r RouteSummary) Key() string {
	return r.Method + " " + r.Template
}

// Catalog is the ordered output of one inference run.
type Catalog struct {
	Source  string         `json:"source,omitempty"`
	Records int            `json:"records"`
	Routes  []RouteSummary `json:"routes"`
}

// Route finds a route by method and template.
func (c *Catalog) Route(method, template string) (RouteSummary, bool) {
	for _, r := range c.Routes {
		if r.Method == method && r.Template == template {
			return r, true
		}
	}
	return RouteSummary{}, false
}

// Host is the host of the first route URL, or "unknown".
func (c *Catalog) Host() string {
	for _, r := range c.Routes {
		rest := r.URL
		if i := strings.Index(rest, "://"); i >= 0 {
			rest = rest[i+3:]
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			return rest
		}
	}
	return "unknown"
}
