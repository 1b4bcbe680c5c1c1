package json

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRateLimitErrorRoundsRetryAfterUp(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimitError(rec, 1500*time.Millisecond)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too Many Requests", body.Error)
}

func TestReadRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Body string `json:"body"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"body":"hi"}`))
	require.NoError(t, Read(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "hi", dst.Body)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"body":"hi","extra":1}`))
	assert.Error(t, Read(httptest.NewRecorder(), req, &dst))
}
