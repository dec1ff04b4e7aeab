package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/apiscout/pkg/types"
)

// OpenAPI renders the catalog as an OpenAPI 3.0 YAML document. Path
// placeholders are renamed after their parameters, so "/a/{int}/b/{int}"
// becomes "/a/{int}/b/{int2}".
func OpenAPI(c *types.Catalog) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Inferred API: " + c.Host(),
			"version":     "1.0.0",
			"description": fmt.Sprintf("Inferred from %d captured records.", c.Records),
		},
		"paths": map[string]interface{}{},
	}
	if servers := serverURLs(c); len(servers) > 0 {
		spec["servers"] = servers
	}

	paths := spec["paths"].(map[string]interface{})
	observed := map[string]int{}
	for _, r := range c.Routes {
		p := openAPIPath(r)
		method := strings.ToLower(r.Method)
		pathItem, ok := paths[p].(map[string]interface{})
		if !ok {
			pathItem = map[string]interface{}{}
			paths[p] = pathItem
		}
		observed[method+" "+p] += r.Stats.Count
		summary := fmt.Sprintf("Observed %d times", observed[method+" "+p])
		// the first route keeps the operation; later ones only add counts
		if prev, ok := pathItem[method].(map[string]interface{}); ok {
			prev["summary"] = summary
			continue
		}
		op := map[string]interface{}{
			"summary": summary,
		}

		params := make([]map[string]interface{}, 0)
		for _, d := range r.Params {
			params = append(params, map[string]interface{}{
				"name":     d.Name,
				"in":       "path",
				"required": true,
				"schema":   domainSchema(d),
			})
		}
		for _, k := range sortedKeys(r.Query) {
			params = append(params, map[string]interface{}{
				"name":     k,
				"in":       "query",
				"required": false,
				"schema":   map[string]interface{}{"type": "string"},
				"example":  r.Query[k][0],
			})
		}
		if len(params) > 0 {
			op["parameters"] = params
		}

		if !r.Body.IsNull() {
			op["requestBody"] = map[string]interface{}{
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema":  valueSchema(r.Body),
						"example": r.Body.Interface(),
					},
				},
			}
		}

		op["responses"] = map[string]interface{}{
			"200": map[string]interface{}{
				"description": "Typical response",
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": responseSchema(r.Response),
					},
				},
			},
		}
		pathItem[method] = op
	}
	return yaml.Marshal(spec)
}

// openAPIPath rewrites placeholders to the parameter names. A trailing
// slash on the template is kept, so /users/1/ and /users/1 stay apart.
func openAPIPath(r types.RouteSummary) string {
	segs := types.SplitPath(r.Template)
	for _, d := range r.Params {
		if d.Position < len(segs) {
			segs[d.Position] = "{" + d.Name + "}"
		}
	}
	p := "/" + strings.Join(segs, "/")
	if len(segs) > 0 && strings.HasSuffix(r.Template, "/") {
		p += "/"
	}
	return p
}

func serverURLs(c *types.Catalog) []map[string]interface{} {
	seen := map[string]bool{}
	var out []map[string]interface{}
	for _, r := range c.Routes {
		base := strings.TrimSuffix(r.URL, r.Template)
		if base == "" || base == r.URL || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, map[string]interface{}{"url": base})
	}
	return out
}

func domainSchema(d types.ParameterDomain) map[string]interface{} {
	schema := map[string]interface{}{}
	switch d.Type {
	case types.ParamInt:
		schema["type"] = "integer"
	case types.ParamFloat:
		schema["type"] = "number"
	case types.ParamUUID:
		schema["type"] = "string"
		schema["format"] = "uuid"
	}
	if d.Min != nil {
		schema["minimum"] = *d.Min
	}
	if d.Max != nil {
		schema["maximum"] = *d.Max
	}
	switch d.Kind {
	case types.DomainMultipleOf:
		schema["multipleOf"] = d.Step
	case types.DomainConstant:
		if d.Min != nil {
			schema["enum"] = []int64{*d.Min}
		}
	case types.DomainArithmetic:
		schema["description"] = fmt.Sprintf("arithmetic progression, step %d", d.Step)
	}
	return schema
}

func responseSchema(s types.ResponseShape) map[string]interface{} {
	switch s.Kind {
	case "object":
		props := map[string]interface{}{}
		for _, f := range s.Fields {
			props[f.Name] = map[string]interface{}{"type": openAPIType(f.Type)}
		}
		return map[string]interface{}{"type": "object", "properties": props}
	case "array":
		schema := map[string]interface{}{"type": "array"}
		if len(s.Sample) > 0 {
			schema["items"] = valueSchema(s.Sample[0])
			example := make([]interface{}, 0, len(s.Sample))
			for _, v := range s.Sample {
				example = append(example, v.Interface())
			}
			schema["example"] = example
		}
		return schema
	}
	schema := map[string]interface{}{"type": openAPIType(s.Kind)}
	if s.Scalar != nil {
		schema["example"] = s.Scalar.Interface()
	}
	return schema
}

// valueSchema derives a schema from one sample value.
func valueSchema(v types.Value) map[string]interface{} {
	switch v.Kind() {
	case types.KindObject:
		props := map[string]interface{}{}
		for _, m := range v.Members() {
			props[m.Key] = valueSchema(m.Value)
		}
		return map[string]interface{}{"type": "object", "properties": props}
	case types.KindArray:
		schema := map[string]interface{}{"type": "array"}
		if items := v.Items(); len(items) > 0 {
			schema["items"] = valueSchema(items[0])
		}
		return schema
	}
	return map[string]interface{}{"type": openAPIType(v.TypeName())}
}

func openAPIType(t string) string {
	switch t {
	case "integer", "number", "boolean", "string", "array", "object":
		return t
	}
	return "string"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var pathParam = regexp.MustCompile(`\{([^}/]+)\}`)

// ValidateOpenAPI checks a rendered document: version, info title, and
// for every path a leading slash, operations with responses, and a
// declared path parameter for each placeholder.
func ValidateOpenAPI(data []byte) []string {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []string{err.Error()}
	}
	var problems []string
	if v, _ := doc["openapi"].(string); !strings.HasPrefix(v, "3.") {
		problems = append(problems, fmt.Sprintf("unsupported openapi version %q", v))
	}
	if info, _ := doc["info"].(map[string]interface{}); info == nil || info["title"] == nil {
		problems = append(problems, "missing info.title")
	}
	paths, ok := doc["paths"].(map[string]interface{})
	if !ok && doc["paths"] != nil {
		return append(problems, "paths is not a mapping")
	}
	for _, p := range sortedKeys(paths) {
		if !strings.HasPrefix(p, "/") {
			problems = append(problems, fmt.Sprintf("path %s does not start with /", p))
		}
		item, ok := paths[p].(map[string]interface{})
		if !ok {
			problems = append(problems, fmt.Sprintf("invalid path item for %s", p))
			continue
		}
		for _, method := range sortedKeys(item) {
			op, _ := item[method].(map[string]interface{})
			if op == nil || op["responses"] == nil {
				problems = append(problems, fmt.Sprintf("%s %s has no responses", method, p))
				continue
			}
			declared := map[string]bool{}
			params, _ := op["parameters"].([]interface{})
			for _, raw := range params {
				if param, ok := raw.(map[string]interface{}); ok && param["in"] == "path" {
					name, _ := param["name"].(string)
					declared[name] = true
				}
			}
			for _, m := range pathParam.FindAllStringSubmatch(p, -1) {
				if !declared[m[1]] {
					problems = append(problems, fmt.Sprintf("%s %s: path parameter %s is not declared", method, p, m[1]))
				}
			}
		}
	}
	return problems
}
