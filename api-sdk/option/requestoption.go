package option

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hilthontt/quizchat/api-sdk/internal/requestconfig"
)

// RequestOption is an option for the requests made by the chat API client.
type RequestOption = requestconfig.RequestOption

// Middleware wraps the round trip of every request.
type Middleware = func(*http.Request, MiddlewareNext) (*http.Response, error)

// MiddlewareNext hands the request to the rest of the chain.
type MiddlewareNext = func(*http.Request) (*http.Response, error)

func parseBaseURL(base string) (*url.URL, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("requestoption: WithBaseURL failed to parse url %s", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("requestoption: base url %q must be http or https", base)
	}
	return u, nil
}

// WithBaseURL sets the URL every relative path is resolved against.
func WithBaseURL(base string) RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		u, err := parseBaseURL(base)
		if err != nil {
			return err
		}
		r.BaseURL = u
		return nil
	})
}

// WithEnvironmentLocal points the client at a backend on localhost unless a
// base url is set explicitly.
func WithEnvironmentLocal() RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		u, err := parseBaseURL("http://localhost:8080/")
		if err != nil {
			return err
		}
		r.DefaultBaseURL = u
		return nil
	})
}

func WithHTTPClient(client *http.Client) RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		if client == nil {
			return fmt.Errorf("requestoption: custom http client cannot be nil")
		}
		r.HTTPClient = client
		return nil
	})
}

func WithBearerToken(token string) RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		r.BearerToken = token
		return nil
	})
}

func WithHeader(key, value string) RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		r.Request.Header.Set(key, value)
		return nil
	})
}

// WithRequestTimeout bounds a single request, including reading the body.
func WithRequestTimeout(dur time.Duration) RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		r.RequestTimeout = dur
		return nil
	})
}

// WithMiddleware appends middlewares; the first one added runs outermost.
func WithMiddleware(middlewares ...Middleware) RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		r.Middlewares = append(r.Middlewares, middlewares...)
		return nil
	})
}

// WithResponseInto stores the raw response in dst. The body is already
// consumed when the call returns.
func WithResponseInto(dst **http.Response) RequestOption {
	return requestconfig.RequestOptionFunc(func(r *requestconfig.RequestConfig) error {
		r.ResponseInto = dst
		return nil
	})
}
