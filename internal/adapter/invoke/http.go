package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"unisearch/internal/domain"
)

// HTTPTransport calls a provider over HTTP. GET sends params as a query
// string; POST sends them as a JSON object. Any 2xx status is success.
type HTTPTransport struct {
	client    *http.Client
	maxOutput int64
}

// NewHTTPTransport creates an http transport using client.
func NewHTTPTransport(client *http.Client, maxOutput int) *HTTPTransport {
	return &HTTPTransport{client: client, maxOutput: int64(maxOutput)}
}

func (t *HTTPTransport) Call(ctx context.Context, spec domain.ProviderSpec, params domain.Params) (Response, error) {
	inv := spec.Invocation
	method := strings.ToUpper(inv.Method)
	if method == "" {
		method = http.MethodGet
	}

	rawURL, templated := templateURL(inv.URL, params)
	u, err := url.Parse(rawURL)
	if err != nil {
		return Response{Status: -1}, fmt.Errorf("parse url: %w", err)
	}

	var body io.Reader
	fields := typedFields(spec, params, templated)
	switch method {
	case http.MethodGet:
		q := u.Query()
		for k, v := range fields {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	case http.MethodPost:
		data, err := json.Marshal(fields)
		if err != nil {
			return Response{Status: -1}, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(data)
	default:
		return Response{Status: -1}, fmt.Errorf("unsupported method %q", method)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return Response{Status: -1}, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	for k, v := range inv.Headers {
		req.Header.Set(k, params.Template(v))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Response{Status: -1}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxOutput+1))
	if err != nil {
		return Response{Status: resp.StatusCode}, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(data)) > t.maxOutput
	if truncated {
		data = data[:t.maxOutput]
	}

	out := Response{
		Output:    string(data),
		Status:    resp.StatusCode,
		OK:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		Truncated: truncated,
	}
	if !out.OK {
		out.Diagnostic = out.Output
	}
	return out, nil
}

// templateURL substitutes query-escaped param values into raw and reports
// which params it consumed.
func templateURL(raw string, params domain.Params) (string, map[domain.Param]bool) {
	used := make(map[domain.Param]bool)
	for _, p := range domain.KnownParams {
		if !domain.References(raw, p) {
			continue
		}
		used[p] = true
		v, _ := params.Get(p)
		raw = strings.ReplaceAll(raw, "{{"+string(p)+"}}", url.QueryEscape(v))
	}
	return raw, used
}

// typedFields returns params keyed by wire name with JSON-friendly types:
// count as a number, content as a boolean.
func typedFields(spec domain.ProviderSpec, params domain.Params, skip map[domain.Param]bool) map[string]any {
	out := make(map[string]any, params.Len())
	params.Each(func(p domain.Param, v string) {
		if skip[p] {
			return
		}
		name, ok := spec.WireName(p)
		if !ok {
			name = string(p)
		}
		switch p {
		case domain.ParamCount:
			if n, err := strconv.Atoi(v); err == nil {
				out[name] = n
				return
			}
		case domain.ParamContent:
			out[name] = v == "true"
			return
		}
		out[name] = v
	})
	return out
}
