package gateway

import (
	"context"
	"net/http"
)

// Credentials are the viewer's backend cookies forwarded on every call.
type Credentials struct {
	Cookies   []*http.Cookie
	CSRFToken string
}

type credentialsKey struct{}
type locationKey struct{}

func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

func CredentialsFrom(ctx context.Context) Credentials {
	if v, ok := ctx.Value(credentialsKey{}).(Credentials); ok {
		return v
	}
	return Credentials{}
}

// WithLocation records the viewer's current path, used as the login return target.
func WithLocation(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, locationKey{}, path)
}

func LocationFrom(ctx context.Context) string {
	if v, ok := ctx.Value(locationKey{}).(string); ok {
		return v
	}
	return ""
}
