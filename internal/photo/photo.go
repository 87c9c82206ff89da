// Package photo loads captured invoice photos for the intake flow. Photos are
// held in memory only: they are destroyed when the flow completes or is
// cancelled, never persisted by this client.
package photo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Captured is one photographed invoice: the raw bytes, a small base64 JPEG
// preview for display, and a display name derived from the file name.
type Captured struct {
	Data    []byte
	Preview string
	Name    string

	// TakenAt is the EXIF capture time, zero when the photo carries none.
	TakenAt time.Time
}

// Load reads a photo from disk and builds its preview and capture metadata.
func Load(path string) (*Captured, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}

	c := &Captured{
		Data: data,
		Name: filepath.Base(path),
	}

	preview, err := encodePreview(data)
	if err != nil {
		// A photo without a preview is still usable for extraction.
		log.Warn().Err(err).Str("path", path).Msg("Preview generation failed")
	} else {
		c.Preview = preview
	}

	c.TakenAt = captureTime(path)
	return c, nil
}

// captureTime extracts the EXIF capture timestamp, preferring
// DateTimeOriginal, then CreateDate, then ModifyDate.
func captureTime(path string) time.Time {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("No EXIF metadata")
		return time.Time{}
	}

	switch {
	case !exifData.DateTimeOriginal().IsZero():
		return exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		return exifData.CreateDate()
	default:
		return exifData.ModifyDate()
	}
}

// EarliestCapture returns the oldest EXIF capture time across photos, or
// fallback when no photo carries one. The intake flow uses it as the
// delivery-day tag on the extraction request.
func EarliestCapture(photos []*Captured, fallback time.Time) time.Time {
	earliest := time.Time{}
	for _, p := range photos {
		if p.TakenAt.IsZero() {
			continue
		}
		if earliest.IsZero() || p.TakenAt.Before(earliest) {
			earliest = p.TakenAt
		}
	}
	if earliest.IsZero() {
		return fallback
	}
	return earliest
}
