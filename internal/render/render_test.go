package render

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/apiscout/pkg/types"
)

func int64p(n int64) *int64 { return &n }

func sampleCatalog(t *testing.T) *types.Catalog {
	t.Helper()
	body, err := types.Parse([]byte(`{"item":"7","qty":"2"}`))
	require.NoError(t, err)
	return &types.Catalog{
		Records: 6,
		Routes: []types.RouteSummary{
			{
				Method:   "GET",
				URL:      "https://shop.example.com/api/users/{int}",
				Template: "/api/users/{int}",
				Params: []types.ParameterDomain{{
					Name: "int", Position: 2, Type: types.ParamInt, Kind: types.DomainArithmetic,
					Step: 1, Min: int64p(1), Max: int64p(3), Distinct: 3,
				}},
				Response: types.ResponseShape{Kind: "object", Fields: []types.FieldType{
					{Name: "id", Type: "integer"}, {Name: "name", Type: "string"},
				}},
				Stats: types.RouteStats{Count: 3, ResponsesUnique: 3, PathVariants: 3},
			},
			{
				Method:   "GET",
				URL:      "https://shop.example.com/api/search",
				Template: "/api/search",
				Query:    map[string][]string{"q": {"a"}},
				Response: types.ResponseShape{Kind: "array", Sample: []types.Value{types.Int(1), types.Int(2)}},
				Stats:    types.RouteStats{Count: 2, ResponsesUnique: 2, QueryVariants: 2},
			},
			{
				Method:        "POST",
				URL:           "https://shop.example.com/api/orders",
				Template:      "/api/orders",
				Body:          body,
				Response:      types.ResponseShape{Kind: "object", Fields: []types.FieldType{{Name: "order", Type: "integer"}}},
				Stats:         types.RouteStats{Count: 1, ResponsesUnique: 1, BodyVariants: 1},
				AmbiguousWith: []string{"/api/{uuid}"},
			},
		},
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, sampleCatalog(t)))
	out := buf.String()
	assert.Contains(t, out, "GET /api/users/{int}  (3 records)")
	assert.Contains(t, out, "param:     int: step 1 [1..3]")
	assert.Contains(t, out, "query:     q=a")
	assert.Contains(t, out, `request:   {"item":"7","qty":"2"}`)
	assert.Contains(t, out, "response:  id: integer, name: string")
	assert.Contains(t, out, "response:  [1,2]")
	assert.Contains(t, out, "ambiguous: /api/{uuid}")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleCatalog(t)))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	routes := decoded["routes"].([]any)
	require.Len(t, routes, 3)
	first := routes[0].(map[string]any)
	assert.Equal(t, "/api/users/{int}", first["template"])
	assert.Nil(t, first["request"])
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleCatalog(t))
	assert.Contains(t, md, "# API Docs: shop.example.com")
	assert.Contains(t, md, "## POST /api/orders")
	assert.Contains(t, md, "- int (int, position 2, 3 distinct): arithmetic, step 1, range 1..3")
	assert.Contains(t, md, "> Also matches: /api/{uuid}")
}

func TestOpenAPIAndValidate(t *testing.T) {
	outDir := t.TempDir()
	written, err := WriteAll(sampleCatalog(t), outDir, []string{"openapi", "markdown"})
	require.NoError(t, err)
	assert.Len(t, written, 2)

	data, err := os.ReadFile(filepath.Join(outDir, OpenAPIFile))
	require.NoError(t, err)
	assert.Empty(t, ValidateOpenAPI(data))
	var spec map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &spec))

	paths := spec["paths"].(map[string]interface{})
	get := paths["/api/users/{int}"].(map[string]interface{})["get"].(map[string]interface{})
	param := get["parameters"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "path", param["in"])
	schema := param["schema"].(map[string]interface{})
	assert.Equal(t, "integer", schema["type"])
	assert.Equal(t, 1, schema["minimum"])
	assert.Equal(t, 3, schema["maximum"])

	post := paths["/api/orders"].(map[string]interface{})["post"].(map[string]interface{})
	rb := post["requestBody"].(map[string]interface{})
	content := rb["content"].(map[string]interface{})["application/json"].(map[string]interface{})
	props := content["schema"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Contains(t, props, "qty")

	servers := spec["servers"].([]interface{})
	assert.Equal(t, "https://shop.example.com", servers[0].(map[string]interface{})["url"])
}

func TestOpenAPIRenamesRepeatedPlaceholders(t *testing.T) {
	r := types.RouteSummary{
		Template: "/a/{int}/b/{int}",
		Params:   []types.ParameterDomain{{Name: "int", Position: 1}, {Name: "int2", Position: 3}},
	}
	assert.Equal(t, "/a/{int}/b/{int2}", openAPIPath(r))
}

func TestWriteAllRejectsUnknownFormat(t *testing.T) {
	_, err := WriteAll(sampleCatalog(t), t.TempDir(), []string{"pdf"})
	assert.Error(t, err)
}

func TestOpenAPIKeepsTrailingSlash(t *testing.T) {
	c := &types.Catalog{Routes: []types.RouteSummary{
		{Method: "GET", URL: "https://h/users/1/", Template: "/users/1/", Stats: types.RouteStats{Count: 2}},
		{Method: "GET", URL: "https://h/users/1", Template: "/users/1", Stats: types.RouteStats{Count: 1}},
	}}
	data, err := OpenAPI(c)
	require.NoError(t, err)
	var spec map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &spec))
	paths := spec["paths"].(map[string]interface{})
	assert.Len(t, paths, 2)
	assert.Contains(t, paths, "/users/1/")
	assert.Contains(t, paths, "/users/1")
	assert.Equal(t, "/", openAPIPath(types.RouteSummary{Template: "/"}))
}

func TestOpenAPIMergesCollidingRoutes(t *testing.T) {
	route := types.RouteSummary{Method: "GET", URL: "https://h/a", Template: "/a", Stats: types.RouteStats{Count: 2}}
	other := route
	other.Stats.Count = 3
	data, err := OpenAPI(&types.Catalog{Routes: []types.RouteSummary{route, other}})
	require.NoError(t, err)
	var spec map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &spec))
	get := spec["paths"].(map[string]interface{})["/a"].(map[string]interface{})["get"].(map[string]interface{})
	assert.Equal(t, "Observed 5 times", get["summary"])
}

func TestValidateOpenAPIProblems(t *testing.T) {
	doc := `openapi: 2.0
paths:
  users:
    get:
      summary: x
  /a/{id}:
    get:
      responses: {}
`
	problems := ValidateOpenAPI([]byte(doc))
	assert.Equal(t, []string{
		`unsupported openapi version ""`,
		"missing info.title",
		"get /a/{id}: path parameter id is not declared",
		"path users does not start with /",
		"get users has no responses",
	}, problems)

	assert.NotEmpty(t, ValidateOpenAPI([]byte("not: [yaml")))
	assert.Empty(t, ValidateOpenAPI([]byte("openapi: 3.0.0\ninfo:\n  title: t\npaths: {}\n")))
}

func TestWriteAllRefusesInvalidOpenAPI(t *testing.T) {
	outDir := t.TempDir()
	c := &types.Catalog{Routes: []types.RouteSummary{
		{Method: "GET", URL: "https://h/a/{int}", Template: "/a/{int}", Stats: types.RouteStats{Count: 2}},
	}}
	written, err := WriteAll(c, outDir, []string{"text", "openapi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path parameter int is not declared")
	assert.Len(t, written, 1)
	_, err = os.Stat(filepath.Join(outDir, OpenAPIFile))
	assert.True(t, os.IsNotExist(err))
}
