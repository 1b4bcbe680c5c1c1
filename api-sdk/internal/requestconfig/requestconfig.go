package requestconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/hilthontt/quizchat/api-sdk/internal"
	"github.com/hilthontt/quizchat/api-sdk/internal/apierror"
)

var ErrNoBaseURL = errors.New("requestconfig: no base url configured")

// This interface is primarily used to describe an [*http.Client], but also
// supports custom HTTP implementations.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestConfig represents all the state related to one request.
//
// Editing the variables inside RequestConfig directly is unstable api. Prefer
// composing the RequestOption instead if possible.
type RequestConfig struct {
	RequestTimeout time.Duration
	Context        context.Context
	Request        *http.Request
	BaseURL        *url.URL
	// DefaultBaseURL will be used if BaseURL is not explicitly overridden using
	// WithBaseURL.
	DefaultBaseURL *url.URL
	CustomHTTPDoer HTTPDoer
	HTTPClient     *http.Client
	Middlewares    []middleware
	BearerToken    string
	// If ResponseBodyInto not nil, then we will attempt to deserialize into
	// ResponseBodyInto. If Destination is a *[]byte, then it will return the body as
	// is.
	ResponseBodyInto any
	// ResponseInto copies the \*http.Response of the corresponding request into the
	// given address
	ResponseInto **http.Response
	Body         io.Reader
}

// middleware is exactly the same type as the Middleware type found in the [option] package,
// but it is redeclared here for circular dependency issues.
type middleware = func(*http.Request, middlewareNext) (*http.Response, error)

// middlewareNext is exactly the same type as the MiddlewareNext type found in the [option] package,
// but it is redeclared here for circular dependency issues.
type middlewareNext = func(*http.Request) (*http.Response, error)

type RequestOption interface {
	Apply(*RequestConfig) error
}

type RequestOptionFunc func(*RequestConfig) error

func (s RequestOptionFunc) Apply(r *RequestConfig) error {
	return s(r)
}

// NewRequestConfig builds the request for path relative to the base url.
// body is sent as is when it is an io.Reader and as JSON otherwise.
func NewRequestConfig(ctx context.Context, method, path string, body, dst any, opts ...RequestOption) (*RequestConfig, error) {
	var reader io.Reader
	contentType := ""

	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("requestconfig: failed to encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimLeft(path, "/"), nil)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range getDefaultHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range getPlatformProperties() {
		req.Header.Set(k, v)
	}

	cfg := &RequestConfig{
		Context:          ctx,
		Request:          req,
		HTTPClient:       http.DefaultClient,
		ResponseBodyInto: dst,
		Body:             reader,
	}

	if err := cfg.Apply(opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *RequestConfig) Apply(opts ...RequestOption) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.Apply(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *RequestConfig) baseURL() (*url.URL, error) {
	base := cfg.BaseURL
	if base == nil {
		base = cfg.DefaultBaseURL
	}
	if base == nil {
		return nil, ErrNoBaseURL
	}

	u := *base
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &u, nil
}

func (cfg *RequestConfig) Execute() error {
	base, err := cfg.baseURL()
	if err != nil {
		return err
	}
	cfg.Request.URL = base.ResolveReference(cfg.Request.URL)

	if cfg.BearerToken != "" {
		cfg.Request.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
	}

	ctx := cfg.Context
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}
	req := cfg.Request.WithContext(ctx)

	if cfg.Body != nil {
		req.Body = io.NopCloser(cfg.Body)
		if s, ok := cfg.Body.(interface{ Len() int }); ok {
			req.ContentLength = int64(s.Len())
		}
	}

	var handler middlewareNext = cfg.HTTPClient.Do
	if cfg.CustomHTTPDoer != nil {
		handler = cfg.CustomHTTPDoer.Do
	}
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		mw, next := cfg.Middlewares[i], handler
		handler = func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		}
	}

	res, err := handler(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if cfg.ResponseInto != nil {
		*cfg.ResponseInto = res
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode >= 400 {
		return apierror.New(req, res, body)
	}

	switch dst := cfg.ResponseBodyInto.(type) {
	case nil:
		return nil
	case *[]byte:
		*dst = body
		return nil
	default:
		if len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

func ExecuteNewRequest(ctx context.Context, method, path string, body, dst any, opts ...RequestOption) error {
	cfg, err := NewRequestConfig(ctx, method, path, body, dst, opts...)
	if err != nil {
		return err
	}
	return cfg.Execute()
}

func getDefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent": fmt.Sprintf("Quizchat/Client %s", internal.PackageVersion),
	}
}

func getNormalizedOS() string {
	switch runtime.GOOS {
	case "ios":
		return "iOS"
	case "android":
		return "Android"
	case "darwin":
		return "MacOS"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "linux":
		return "Linux"
	default:
		return fmt.Sprintf("Other:%s", runtime.GOOS)
	}
}

func getNormalizedArchitecture() string {
	switch runtime.GOARCH {
	case "386":
		return "x32"
	case "amd64":
		return "x64"
	case "arm":
		return "arm"
	case "arm64":
		return "arm64"
	default:
		return fmt.Sprintf("other:%s", runtime.GOARCH)
	}
}

func getPlatformProperties() map[string]string {
	return map[string]string{
		"X-Quizchat-Lang":            "go",
		"X-Quizchat-Package-Version": internal.PackageVersion,
		"X-Quizchat-OS":              getNormalizedOS(),
		"X-Quizchat-Arch":            getNormalizedArchitecture(),
		"X-Quizchat-Runtime-Version": runtime.Version(),
	}
}
