package loader

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apiscout/internal/logging"
	"github.com/yourorg/apiscout/pkg/types"
)

func TestLoadCaptureFile(t *testing.T) {
	var logs bytes.Buffer
	log := logrus.New()
	log.SetOutput(&logs)

	records, stats, err := Load(filepath.Join("..", "..", "testdata", "capture.jsonl"), log)
	require.NoError(t, err)
	assert.Equal(t, 11, stats.Lines)
	assert.Equal(t, 2, stats.Malformed)
	assert.Equal(t, 9, stats.Decoded)
	require.Len(t, records, 9)
	assert.Contains(t, logs.String(), "skipping corrupted capture line")

	first := records[0]
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, "GET", first.Method)
	assert.Equal(t, "https", first.Scheme)
	assert.Equal(t, "shop.example.com", first.Host)
	assert.Equal(t, "/api/users/1", first.Path)
	assert.Equal(t, []string{"api", "users", "1"}, first.Segments)
	assert.True(t, first.RequestBody.IsNull())
	assert.Equal(t, types.KindObject, first.ResponseBody.Kind())

	// method is upper-cased and request_body may be absent
	assert.Equal(t, "GET", records[2].Method)
	assert.True(t, records[2].RequestBody.IsNull())

	assert.Equal(t, map[string][]string{"q": {"a"}}, records[3].Query)

	order := records[7]
	assert.Equal(t, "POST", order.Method)
	require.Equal(t, types.KindObject, order.RequestBody.Kind())
	assert.Equal(t, `{"item":"7","qty":"2"}`, order.RequestBody.Canonical())
}

func TestLoadMissingArtifactIsNoop(t *testing.T) {
	records, stats, err := Load(filepath.Join(t.TempDir(), "absent.jsonl"), logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, records)
	assert.Zero(t, stats.Lines)
}

func TestDecodeKeepsCaptureOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"url":"http://h/b","method":"GET","status":200,"response_body":[1]}`,
		``,
		`{"url":"http://h/a","method":"GET","status":200,"response_body":[2]}`,
	}, "\n")
	records, stats, err := Decode(strings.NewReader(input), logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Malformed)
	require.Len(t, records, 2)
	assert.Equal(t, "/b", records[0].Path)
	assert.Equal(t, "/a", records[1].Path)
	assert.Equal(t, 2, records[1].Seq)
}

func TestParseQueryDropsBlankValues(t *testing.T) {
	assert.Nil(t, ParseQuery(""))
	assert.Nil(t, ParseQuery("a=&b="))
	assert.Equal(t, map[string][]string{"a": {"1", "2"}}, ParseQuery("a=1&a=2&b="))
}

func TestRequestBodyConversion(t *testing.T) {
	tests := []struct {
		name string
		in   types.Value
		want string
	}{
		{name: "absent", in: types.Null(), want: "null"},
		{name: "empty string", in: types.String("  "), want: "null"},
		{name: "embedded json", in: types.String(`{"b":1,"a":2}`), want: `{"a":2,"b":1}`},
		{name: "form", in: types.String("x=1&y=two"), want: `{"x":"1","y":"two"}`},
		{name: "plain text", in: types.String("hello world"), want: `"hello world"`},
		{name: "structured passthrough", in: types.Array(types.Int(1)), want: `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequestBody(tt.in).Canonical())
		})
	}
}
