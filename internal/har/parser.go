// Package har converts HTTP Archive files into traffic records, so browser
// exports can be analyzed like a native capture.
package har

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/yourorg/apiscout/internal/loader"
	"github.com/yourorg/apiscout/pkg/types"
)

type HARFile struct {
	Log struct {
		Entries []Entry `json:"entries"`
	} `json:"log"`
}

type Entry struct {
	StartedDateTime string `json:"startedDateTime"`
	Pageref         string `json:"pageref"`
	Request         struct {
		Method   string `json:"method"`
		URL      string `json:"url"`
		PostData struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"postData"`
	} `json:"request"`
	Response struct {
		Status  int `json:"status"`
		Content struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"content"`
	} `json:"response"`
}

// Parse reads a HAR file and returns its entries as records ordered by
// start time. Binary bodies are omitted; JSON bodies are decoded.
func Parse(filePath string) ([]types.TrafficRecord, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var hf HARFile
	if err := json.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("decode har: %w", err)
	}

	type stamped struct {
		at  time.Time
		rec types.TrafficRecord
	}
	entries := make([]stamped, 0, len(hf.Log.Entries))
	for _, e := range hf.Log.Entries {
		ts, err := time.Parse(time.RFC3339Nano, e.StartedDateTime)
		if err != nil {
			return nil, fmt.Errorf("parse startedDateTime: %w", err)
		}
		reqText := decodeBody(e.Request.PostData.Text, e.Request.PostData.Encoding, e.Request.PostData.MimeType)
		respText := decodeBody(e.Response.Content.Text, e.Response.Content.Encoding, e.Response.Content.MimeType)

		rec, err := loader.Normalize(loader.Entry{
			URL:          e.Request.URL,
			Method:       e.Request.Method,
			Status:       e.Response.Status,
			RequestBody:  types.String(reqText),
			ResponseBody: responseValue(respText),
			Page:         e.Pageref,
		})
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Request.URL, err)
		}
		entries = append(entries, stamped{at: ts, rec: rec})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})
	records := make([]types.TrafficRecord, len(entries))
	for i, e := range entries {
		records[i] = e.rec
		records[i].Seq = i + 1
	}
	return records, nil
}

// responseValue decodes a JSON body; any other text is kept as a string.
func responseValue(text string) types.Value {
	if strings.TrimSpace(text) == "" {
		return types.Null()
	}
	if v, err := types.Parse([]byte(text)); err == nil {
		return v
	}
	return types.String(text)
}

func decodeBody(text, encoding, mimeType string) string {
	if text == "" || isBinaryContentType(mimeType) {
		return ""
	}
	if strings.EqualFold(encoding, "base64") {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	return text
}

func isBinaryContentType(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") || mt == "application/octet-stream"
}
