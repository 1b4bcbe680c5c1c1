// Package media prepares files before they are uploaded to the chat backend.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

var ErrUndecodableImage = errors.New("image could not be decoded")

// Downscale fits the image in r within maxDim on both sides, keeping its
// aspect ratio and re-encoding it in the format its filename names. Files
// whose extension is not an image format, and images that already fit, are
// returned byte for byte. The bool reports whether the image was resized.
func Downscale(r io.Reader, filename string, maxDim int) (io.Reader, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	format, err := imaging.FormatFromFilename(filename)
	if err != nil || maxDim <= 0 {
		return bytes.NewReader(data), false, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrUndecodableImage, filename, err)
	}

	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return bytes.NewReader(data), false, nil
	}

	var buf bytes.Buffer
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return nil, false, fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return &buf, true, nil
}
