package gateway

import (
	"context"
	"net/http"
)

// Get performs a GET and decodes the JSON answer into T.
func Get[T any](ctx context.Context, d Doer, route, path string) (T, error) {
	return call[T](ctx, d, Request{Method: http.MethodGet, Path: path, Route: route})
}

// Post sends body as JSON and decodes the answer into T.
func Post[T any](ctx context.Context, d Doer, route, path string, body any) (T, error) {
	return call[T](ctx, d, Request{Method: http.MethodPost, Path: path, Body: body, Route: route})
}

func call[T any](ctx context.Context, d Doer, req Request) (T, error) {
	var out T
	res := d.Do(ctx, req)
	if err := res.Decode(&out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
