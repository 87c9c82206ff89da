package photo

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// previewMaxDimension bounds the preview's longest side. Previews are for
// on-screen thumbnails, not for extraction, so small is fine.
const previewMaxDimension = 320

// previewQuality is the JPEG quality for preview encoding.
const previewQuality = 70

// encodePreview downscales the photo and returns it as a base64 JPEG string.
func encodePreview(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scale := 1.0
	if width > height && width > previewMaxDimension {
		scale = float64(previewMaxDimension) / float64(width)
	} else if height >= width && height > previewMaxDimension {
		scale = float64(previewMaxDimension) / float64(height)
	}

	dst := src
	if scale < 1.0 {
		scaled := image.NewRGBA(image.Rect(0, 0,
			int(float64(width)*scale), int(float64(height)*scale)))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		dst = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: previewQuality}); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
