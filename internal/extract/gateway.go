// Package extract sends photographed invoices to a text-extraction service
// and normalizes the heterogeneous per-image results into material records.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// extractTimeout is the HTTP client timeout for the batched extraction call.
// Extraction of several invoice photos routinely takes tens of seconds.
const extractTimeout = 120 * time.Second

// maxConcurrentEncodes bounds the parallel base64 conversions.
const maxConcurrentEncodes = 10

// Result is the extraction outcome for one submitted image. Immutable once
// received. SourceIndex mirrors the input ordering as a best-effort
// correlation hint; the service may merge or split entries, so the result
// count need not equal the image count.
type Result struct {
	SourceIndex int               `json:"source_index"`
	Fields      map[string]string `json:"data"`
	FileURL     string            `json:"file_url,omitempty"`
}

// ExtractionError is a non-success response from the extraction service.
type ExtractionError struct {
	Status int
	Detail string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (status %d): %s", e.Status, e.Detail)
}

// Extractor turns an ordered batch of invoice photos into extraction results.
type Extractor interface {
	Extract(ctx context.Context, images [][]byte, objectID, deliveryID string, date time.Time) ([]Result, error)
}

// HTTPExtractor calls the JSON extraction backend with one batched request
// per intake flow, tagged with the owning object, delivery and date so the
// service can scope its work per delivery-day.
type HTTPExtractor struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPExtractor creates an extractor against the given service base URL.
func NewHTTPExtractor(baseURL string) *HTTPExtractor {
	return &HTTPExtractor{
		httpClient: &http.Client{Timeout: extractTimeout},
		baseURL:    baseURL,
	}
}

type extractRequest struct {
	ImagesBase64 []string `json:"images_base64"`
	ObjectID     string   `json:"object_id"`
	DeliveryID   string   `json:"delivery_id"`
	Date         string   `json:"date"`
}

type extractResponse struct {
	Results []struct {
		Data    map[string]string `json:"data"`
		FileURL string            `json:"file_url"`
	} `json:"results"`
}

// Extract submits all images in a single batched call. On any non-success
// response it returns an ExtractionError and no partial results.
func (g *HTTPExtractor) Extract(ctx context.Context, images [][]byte, objectID, deliveryID string, date time.Time) ([]Result, error) {
	encoded := encodeAll(images)

	reqBody, err := json.Marshal(extractRequest{
		ImagesBase64: encoded,
		ObjectID:     objectID,
		DeliveryID:   deliveryID,
		Date:         date.Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/extract", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	log.Info().
		Str("deliveryId", deliveryID).
		Str("objectId", objectID).
		Int("images", len(images)).
		Msg("Sending invoice photos for extraction")

	httpResp, err := g.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("status", 0).Dur("duration", duration).Err(err).Msg("Extraction response")
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}

	log.Debug().
		Int("status", httpResp.StatusCode).
		Dur("duration", duration).
		Int("bodyBytes", len(body)).
		Msg("Extraction response")

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &ExtractionError{Status: httpResp.StatusCode, Detail: string(body)}
	}

	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	results := make([]Result, 0, len(resp.Results))
	for i, r := range resp.Results {
		results = append(results, Result{
			SourceIndex: i,
			Fields:      r.Data,
			FileURL:     r.FileURL,
		})
	}

	log.Info().
		Str("deliveryId", deliveryID).
		Int("results", len(results)).
		Msg("Extraction complete")
	return results, nil
}

// encodeAll converts every image to base64 concurrently. Conversions are
// independent and the output preserves input order by index.
func encodeAll(images [][]byte) []string {
	encoded := make([]string, len(images))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentEncodes)

	for i, img := range images {
		wg.Add(1)
		go func(idx int, data []byte) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			encoded[idx] = base64.StdEncoding.EncodeToString(data)
		}(i, img)
	}

	wg.Wait()
	return encoded
}
