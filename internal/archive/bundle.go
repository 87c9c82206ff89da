// Package archive bundles a confirmed intake's invoice photos and material
// manifest into a zip for audit storage. Archival is best-effort: a failure
// here never fails the confirm that preceded it.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/buildlens/delivery-intake/internal/delivery"
	"github.com/buildlens/delivery-intake/internal/photo"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

func init() {
	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})
	zip.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(r)
		}
		return zr.IOReadCloser()
	})
}

// manifest is the materials.json entry written alongside the photos.
type manifest struct {
	DeliveryID  string                    `json:"delivery_id"`
	ObjectID    string                    `json:"object_id"`
	ConfirmedAt time.Time                 `json:"confirmed_at"`
	Materials   []delivery.MaterialRecord `json:"materials"`
}

// Bundle builds a zip holding every invoice photo (zstd-compressed entries)
// plus a materials.json manifest of the confirmed records.
func Bundle(deliveryID, objectID string, photos []*photo.Captured, materials []delivery.MaterialRecord) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifestData, err := json.MarshalIndent(manifest{
		DeliveryID:  deliveryID,
		ObjectID:    objectID,
		ConfirmedAt: time.Now().UTC(),
		Materials:   materials,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	mw, err := zw.Create("materials.json")
	if err != nil {
		return nil, fmt.Errorf("create manifest entry: %w", err)
	}
	if _, err := mw.Write(manifestData); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	for i, p := range photos {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("invoice-%02d.jpg", i+1)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zipMethodZstd,
		})
		if err != nil {
			return nil, fmt.Errorf("create photo entry %s: %w", name, err)
		}
		if _, err := w.Write(p.Data); err != nil {
			return nil, fmt.Errorf("write photo %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

// Upload stores the bundle at {objectID}/{deliveryID}/intake-{date}.zip.
// Returns the object key.
func Upload(ctx context.Context, client *s3.Client, bucket, deliveryID, objectID string, bundle []byte) (string, error) {
	key := fmt.Sprintf("%s/%s/intake-%s.zip", objectID, deliveryID, time.Now().UTC().Format("2006-01-02"))
	contentType := "application/zip"

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(bundle),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload intake bundle to S3: %w", err)
	}

	log.Info().
		Str("key", key).
		Int("size", len(bundle)).
		Msg("Intake bundle archived")
	return key, nil
}
