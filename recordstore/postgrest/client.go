// Package postgrest implements recordstore.Store against a hosted PostgREST
// endpoint (the REST interface of the hosted database).
package postgrest

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
	"time"

	"github.com/jonkersai/website/recordstore"
	"github.com/pkg/errors"
)

var _ recordstore.Store = (*Client)(nil)

type Client struct {
	baseURL    string // e.g. https://project.example.co/rest/v1
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the REST root at baseURL ("/rest/v1" is appended when missing).
func New(baseURL, apiKey string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[postgrest.New] base url is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/rest/v1") {
		baseURL += "/rest/v1"
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Client) Select(ctx context.Context, table string, q recordstore.Query) ([]recordstore.Row, error) {
	params := url.Values{}
	if len(q.Columns) > 0 {
		params.Set("select", strings.Join(quoteColumns(q.Columns), ","))
	} else {
		params.Set("select", "*")
	}
	if err := addFilter(params, q.Filter); err != nil {
		return nil, err
	}
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []recordstore.Row
	if _, err := c.do(ctx, http.MethodGet, "/"+table, params, nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Count(ctx context.Context, table string, f recordstore.Filter) (int, error) {
	params := url.Values{"select": {"*"}}
	if err := addFilter(params, f); err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, http.MethodHead, "/"+table, params, nil, map[string]string{"Prefer": "count=exact"}, nil)
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.Header.Get("Content-Range"))
}

func (c *Client) Insert(ctx context.Context, table string, rows ...recordstore.Row) ([]recordstore.Row, error) {
	var out []recordstore.Row
	_, err := c.do(ctx, http.MethodPost, "/"+table, nil, rows, map[string]string{"Prefer": "return=representation"}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, table string, f recordstore.Filter, patch recordstore.Row) ([]recordstore.Row, error) {
	params := url.Values{}
	if err := addFilter(params, f); err != nil {
		return nil, err
	}
	var out []recordstore.Row
	_, err := c.do(ctx, http.MethodPatch, "/"+table, params, patch, map[string]string{"Prefer": "return=representation"}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, table string, f recordstore.Filter) error {
	params := url.Values{}
	if err := addFilter(params, f); err != nil {
		return err
	}
	_, err := c.do(ctx, http.MethodDelete, "/"+table, params, nil, nil, nil)
	return err
}

func (c *Client) RPC(ctx context.Context, name string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	var raw json.RawMessage
	if _, err := c.do(ctx, http.MethodPost, "/rpc/"+name, nil, args, nil, &raw); err != nil {
		return nil, err
	}
	var out any
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "[postgrest.RPC] decode")
	}
	return out, nil
}

// apiError is the error body returned by PostgREST.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, headers map[string]string, out any) (*http.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[postgrest] encode body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[postgrest] new request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", c.apiKey)
	bearer := c.apiKey
	if caller, ok := recordstore.CallerFromContext(ctx); ok && caller.AccessToken != "" {
		bearer = caller.AccessToken
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &recordstore.Error{Message: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &recordstore.Error{Message: "read response", Err: err}
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode)
		}
		return nil, &recordstore.Error{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], data...)
			return resp, nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return nil, errors.Wrap(err, "[postgrest] decode response")
		}
	}
	return resp, nil
}

func addFilter(params url.Values, f recordstore.Filter) error {
	for _, cond := range f {
		switch cond.Op {
		case recordstore.OpEq:
			if cond.Value == nil {
				params.Add(cond.Column, "is.null")
				continue
			}
			params.Add(cond.Column, "eq."+encodeValue(cond.Value))
		case recordstore.OpLt:
			params.Add(cond.Column, "lt."+encodeValue(cond.Value))
		case recordstore.OpIn:
			values, _ := cond.Value.([]any)
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = `"` + strings.ReplaceAll(encodeValue(v), `"`, `\"`) + `"`
			}
			params.Add(cond.Column, "in.("+strings.Join(parts, ",")+")")
		default:
			return fmt.Errorf("unsupported operator %q", cond.Op)
		}
	}
	return nil
}

func encodeValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(t)
	}
	return recordstore.String(v)
}

// quoteColumns quotes mixed-case column names such as "Password".
func quoteColumns(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if strings.ToLower(c) != c {
			out[i] = `"` + c + `"`
			continue
		}
		out[i] = c
	}
	return out
}

// parseContentRange reads the total from "0-24/3573" or "*/0".
func parseContentRange(v string) (int, error) {
	idx := strings.LastIndex(v, "/")
	if idx < 0 {
		return 0, fmt.Errorf("missing count in content-range %q", v)
	}
	n, err := strconv.Atoi(v[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid content-range %q: %w", v, err)
	}
	return n, nil
}
