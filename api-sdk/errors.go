package apisdk

import (
	"errors"

	"github.com/hilthontt/quizchat/api-sdk/internal/apierror"
)

// Error is the error returned for non-2xx responses.
type Error = apierror.Error

var (
	ErrMissingPeerID   = errors.New("missing required peer id parameter")
	ErrMissingFilename = errors.New("missing required filename parameter")
	ErrMissingID       = errors.New("response carries no message id")
)

// StatusCode reports the HTTP status behind err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
