package filter

import (
	"strings"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/pkg/types"
)

// SanitizeConfig is an alias of config.SanitizeConfig.
type SanitizeConfig = config.SanitizeConfig

// Sanitize returns a copy of the catalog with sensitive query params and
// body fields replaced in the representative examples. The input catalog
// is left untouched.
func Sanitize(c *types.Catalog, cfg SanitizeConfig) *types.Catalog {
	paramSet := toLowerSet(append(append([]string{}, cfg.QueryParams...), cfg.BodyFields...))
	fieldSet := toLowerSet(cfg.BodyFields)
	out := *c
	out.Routes = make([]types.RouteSummary, len(c.Routes))
	for i, r := range c.Routes {
		r.Query = sanitizeQueryParams(r.Query, paramSet, cfg.Replacement)
		r.Body = sanitizeValue(r.Body, fieldSet, cfg.Replacement)
		if len(r.Response.Sample) > 0 {
			sample := make([]types.Value, len(r.Response.Sample))
			for j, v := range r.Response.Sample {
				sample[j] = sanitizeValue(v, fieldSet, cfg.Replacement)
			}
			r.Response.Sample = sample
		}
		out.Routes[i] = r
	}
	return &out
}

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, v := range items {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

func sanitizeQueryParams(in map[string][]string, set map[string]struct{}, replacement string) map[string][]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string][]string, len(in))
	for k, vs := range in {
		if _, ok := set[strings.ToLower(k)]; ok {
			repl := make([]string, len(vs))
			for i := range repl {
				repl[i] = replacement
			}
			out[k] = repl
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// sanitizeValue replaces matching object members at any depth.
func sanitizeValue(v types.Value, set map[string]struct{}, replacement string) types.Value {
	switch v.Kind() {
	case types.KindObject:
		members := make([]types.Member, 0, v.Len())
		for _, m := range v.Members() {
			if _, ok := set[strings.ToLower(m.Key)]; ok {
				members = append(members, types.Member{Key: m.Key, Value: types.String(replacement)})
				continue
			}
			members = append(members, types.Member{Key: m.Key, Value: sanitizeValue(m.Value, set, replacement)})
		}
		return types.Object(members...)
	case types.KindArray:
		items := make([]types.Value, 0, v.Len())
		for _, it := range v.Items() {
			items = append(items, sanitizeValue(it, set, replacement))
		}
		return types.Array(items...)
	}
	return v
}
