package apierror

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Error is returned for every response with a status code of 400 or above.
type Error struct {
	StatusCode int
	Method     string
	URL        string
	Message    string
	Body       []byte
}

func New(req *http.Request, resp *http.Response, body []byte) *Error {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &Error{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		Message:    msg,
		Body:       body,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q: %d %s", e.Method, e.URL, e.StatusCode, e.Message)
}
