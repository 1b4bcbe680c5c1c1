package option

import (
	"net/http"
	"net/http/httputil"
	"regexp"
	"time"

	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
)

var sensitiveHeaderRegex = regexp.MustCompile(`(?im)^(Authorization|Cookie|Set-Cookie|X-Api-Key): .+$`)

func redactSensitiveHeaders(s string) string {
	return sensitiveHeaderRegex.ReplaceAllString(s, "$1: [REDACTED]")
}

// WithDebugLog dumps every request and response at debug level. Request
// bodies are left out since uploads can be large.
func WithDebugLog(logger logging.Logger) RequestOption {
	if logger == nil {
		logger = logging.NewNop()
	}

	return WithMiddleware(func(r *http.Request, next MiddlewareNext) (*http.Response, error) {
		if dump, err := httputil.DumpRequestOut(r, false); err == nil {
			logger.Debug(logging.Rest, logging.Send, redactSensitiveHeaders(string(dump)), nil)
		}

		start := time.Now()
		resp, err := next(r)

		extra := map[logging.ExtraKey]any{
			logging.Method:  r.Method,
			logging.Path:    r.URL.Path,
			logging.Latency: time.Since(start).String(),
		}
		if err != nil {
			extra[logging.ErrorMessage] = err.Error()
			logger.Warn(logging.Rest, logging.Send, "request error", extra)
			return resp, err
		}

		extra[logging.StatusCode] = resp.StatusCode
		if dump, err := httputil.DumpResponse(resp, false); err == nil {
			logger.Debug(logging.Rest, logging.Send, redactSensitiveHeaders(string(dump)), extra)
		}

		return resp, err
	})
}
