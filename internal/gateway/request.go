package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes a call to the API. Path is relative to the configured
// API prefix.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is marshalled as JSON when not nil.
	Body   any
	Header http.Header

	// Anonymous requests never wait for the session to be bootstrapped. A
	// credential is still attached if one is present.
	Anonymous bool
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Envelope is the standard API response wrapper.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries pagination details for list responses.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Sender issues API requests. *Gateway is the production implementation.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Call sends req and decodes the enveloped response data.
func Call[T any](ctx context.Context, g Sender, req Request) (Envelope[T], error) {
	var env Envelope[T]

	resp, err := g.Send(ctx, req)
	if err != nil {
		return env, err
	}

	if len(resp.Body) == 0 {
		return env, nil
	}

	err = resp.Decode(&env)
	return env, err
}
