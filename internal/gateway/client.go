package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/platform/requestid"
)

const maxBodyBytes = 4 << 20

var tracer = otel.Tracer("github.com/yungbote/buoy-console/internal/gateway")

type Kind int

const (
	KindOK Kind = iota
	KindUnauthorized
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "failed"
	}
}

// Request describes one backend call. Path is relative to the backend prefix
// (e.g. "/api/datasets/"); Route is a low-cardinality label for metrics.
type Request struct {
	Method string
	Path   string
	Body   any
	Route  string
}

// Result is the outcome of a call. Do never navigates; the unauthorized
// variant carries the login URL for whichever top-level handler owns navigation.
type Result struct {
	Kind       Kind
	StatusCode int
	Body       []byte
	LoginURL   string
	Err        error
}

// Decode unmarshals a successful body into out, or returns the failure.
func (r Result) Decode(out any) error {
	if r.Kind != KindOK {
		if r.Err != nil {
			return r.Err
		}
		return &NetworkError{StatusCode: r.StatusCode}
	}
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &ParseError{Body: snippet(r.Body), Err: err}
	}
	return nil
}

// Doer is the capability higher layers depend on.
type Doer interface {
	Do(ctx context.Context, req Request) Result
	LoginURL(next string) string
}

// Observer receives one call per completed request.
type Observer interface {
	ObserveRequest(method, route string, kind Kind, status int, elapsed time.Duration)
}

type Options struct {
	BaseURL   string
	Prefix    string
	LoginPath string
	PublicURL string
	APIKey    string

	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *logger.Logger
	Observer   Observer
}

type Client struct {
	baseURL   string
	prefix    string
	loginPath string
	publicURL string
	apiKey    string
	timeout   time.Duration

	httpClient *http.Client
	log        *logger.Logger
	observer   Observer
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(strings.TrimSpace(opts.Prefix), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	loginPath := strings.TrimSpace(opts.LoginPath)
	if loginPath == "" {
		loginPath = "/login/"
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL:    baseURL,
		prefix:     prefix,
		loginPath:  normalizePath(loginPath),
		publicURL:  strings.TrimRight(strings.TrimSpace(opts.PublicURL), "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		timeout:    opts.Timeout,
		httpClient: hc,
		log:        log.With("component", "gateway"),
		observer:   opts.Observer,
	}, nil
}

// LoginURL builds the login target that returns the viewer to next.
func (c *Client) LoginURL(next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		next = "/"
	}
	return c.publicURL + c.prefix + c.loginPath + "?next=" + url.QueryEscape(next)
}

func (c *Client) Do(ctx context.Context, req Request) Result {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	route := req.Route
	if route == "" {
		route = "other"
	}
	path := c.prefix + normalizePath(req.Path)

	ctx, span := tracer.Start(ctx, "backend "+method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	res := c.do(ctx, method, path, req.Body)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	if res.Kind != KindOK {
		span.SetStatus(codes.Error, res.Kind.String())
		if res.Err != nil {
			span.RecordError(res.Err)
		}
	}
	if c.observer != nil {
		c.observer.ObserveRequest(method, route, res.Kind, res.StatusCode, elapsed)
	}

	fields := []interface{}{
		"method", method,
		"path", path,
		"status", res.StatusCode,
		"result", res.Kind.String(),
		"duration_ms", elapsed.Milliseconds(),
	}
	if id := requestid.FromContext(ctx); id != "" {
		fields = append(fields, "request_id", id)
	}
	switch {
	case res.Kind == KindFailed && res.StatusCode >= 500:
		c.log.Warn("backend call failed", append(fields, "error", res.Err)...)
	case res.Kind == KindFailed:
		c.log.Debug("backend call failed", append(fields, "error", res.Err)...)
	default:
		c.log.Debug("backend call", fields...)
	}
	return res
}

func (c *Client) do(ctx context.Context, method, path string, body any) Result {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Result{Kind: KindFailed, Err: err}
		}
		rdr = bytes.NewReader(raw)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return Result{Kind: KindFailed, Err: err}
	}
	c.setHeaders(ctx, httpReq, body != nil)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{Kind: KindFailed, Err: &NetworkError{Err: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{Kind: KindFailed, StatusCode: resp.StatusCode, Err: &NetworkError{StatusCode: resp.StatusCode, Err: err}}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		login := c.LoginURL(LocationFrom(ctx))
		return Result{
			Kind:       KindUnauthorized,
			StatusCode: resp.StatusCode,
			Body:       raw,
			LoginURL:   login,
			Err:        &UnauthorizedError{LoginURL: login},
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		nerr := &NetworkError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(raw),
			Body:       snippet(raw),
		}
		var err error = nerr
		if method != http.MethodGet && isValidationStatus(resp.StatusCode) {
			err = &ValidationError{NetworkError: nerr}
		}
		return Result{Kind: KindFailed, StatusCode: resp.StatusCode, Body: raw, Err: err}
	default:
		return Result{Kind: KindOK, StatusCode: resp.StatusCode, Body: raw}
	}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	creds := CredentialsFrom(ctx)
	for _, ck := range creds.Cookies {
		if ck != nil && ck.Name != "" {
			req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}
	if req.Method != http.MethodGet && creds.CSRFToken != "" {
		req.Header.Set("X-CSRFToken", creds.CSRFToken)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

func isValidationStatus(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity
}

// normalizePath gives every path a leading and a trailing slash, keeping any
// query string intact. The backend only routes the trailing-slash form.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	query := ""
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p, query = p[:i], p[i:]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + query
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}
