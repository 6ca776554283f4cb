package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cataloghq/catalog-backend/internal/types"
)

// FileStore is what the fetcher needs from the blob layer; satisfied by
// services.BucketService.
type FileStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Fetcher resolves a job's raw rows, either from an uploaded file or from the
// source's API endpoint.
type Fetcher struct {
	files  FileStore
	client *http.Client
}

func NewFetcher(files FileStore, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{files: files, client: client}
}

// FetchRows returns the raw records for a job. File jobs download and parse
// the referenced object; API jobs call the source endpoint.
func (f *Fetcher) FetchRows(ctx context.Context, source *types.ImportSource, job *types.ImportJob) ([]map[string]any, error) {
	if source.Kind == types.SourceKindAPI || (job.FileKey == "" && source.APIURL != "") {
		return f.fetchAPI(ctx, source)
	}
	if job.FileKey == "" {
		return nil, fmt.Errorf("job has no file reference and source %q has no API endpoint", source.Name)
	}
	if f.files == nil {
		return nil, fmt.Errorf("no file store configured")
	}
	data, err := f.files.Download(ctx, job.FileKey)
	if err != nil {
		return nil, fmt.Errorf("download %q: %w", job.FileKey, err)
	}
	name := job.FileName
	if name == "" {
		name = job.FileKey
	}
	rows, err := ParseRows(name, data)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", name, err)
	}
	return rows, nil
}

func (f *Fetcher) fetchAPI(ctx context.Context, source *types.ImportSource) ([]map[string]any, error) {
	if source.APIURL == "" {
		return nil, fmt.Errorf("source %q has no api_url", source.Name)
	}
	method := strings.ToUpper(strings.TrimSpace(source.APIMethod))
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, source.APIURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range source.APIHeaders.Data() {
		req.Header.Set(k, v)
	}
	applyAuth(req, source)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s %s: %w", method, source.APIURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("source API returned %s", resp.Status)
	}
	return decodeAPIRows(body)
}

func applyAuth(req *http.Request, source *types.ImportSource) {
	switch source.AuthType {
	case types.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+source.AuthToken)
	case types.AuthAPIKey:
		header := source.AuthHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, source.AuthToken)
	case types.AuthBasic:
		req.SetBasicAuth(source.AuthUser, source.AuthPass)
	}
}

// decodeAPIRows accepts either a JSON array of objects or a single object
// (normalized to a one-element slice). A top-level "items"/"data"/"products"
// array wrapper is unwrapped first.
func decodeAPIRows(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var rows []map[string]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode response array: %w", err)
		}
		return rows, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode response object: %w", err)
	}
	for _, wrapper := range []string{"items", "data", "products"} {
		if arr, ok := obj[wrapper].([]any); ok {
			rows := make([]map[string]any, 0, len(arr))
			for _, item := range arr {
				if m, ok := item.(map[string]any); ok {
					rows = append(rows, m)
				}
			}
			return rows, nil
		}
	}
	return []map[string]any{obj}, nil
}
