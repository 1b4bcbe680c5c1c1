package apisdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"

	"github.com/hilthontt/quizchat/api-sdk/internal/requestconfig"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/tidwall/gjson"
)

type MediaService struct {
	Options []option.RequestOption
}

func NewMediaService(opts ...option.RequestOption) *MediaService {
	return &MediaService{
		Options: opts,
	}
}

// Upload sends r as the multipart field "file" and returns the URL the
// server stored it under.
func (s *MediaService) Upload(ctx context.Context, filename string, r io.Reader, opts ...option.RequestOption) (string, error) {
	if filename == "" {
		return "", ErrMissingFilename
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to write file to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	opts = slices.Concat(s.Options, opts, []option.RequestOption{
		option.WithHeader("Content-Type", writer.FormDataContentType()),
	})

	var raw []byte
	if err := requestconfig.ExecuteNewRequest(ctx, http.MethodPost, "api/media/upload", &body, &raw, opts...); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	url := gjson.GetBytes(raw, "url").String()
	if url == "" {
		return "", fmt.Errorf("upload response carries no url")
	}
	return url, nil
}
