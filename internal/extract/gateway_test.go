package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestExtractor creates an HTTPExtractor pointing at a test HTTP server.
func newTestExtractor(server *httptest.Server) *HTTPExtractor {
	return &HTTPExtractor{
		httpClient: server.Client(),
		baseURL:    server.URL,
	}
}

func TestExtractBatchesImagesInOrder(t *testing.T) {
	photos := [][]byte{[]byte("first invoice"), []byte("second invoice"), []byte("third invoice")}

	var got extractRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/extract" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer server.Close()

	g := newTestExtractor(server)
	date := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	_, err := g.Extract(context.Background(), photos, "obj-7", "d-42", date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.ImagesBase64) != 3 {
		t.Fatalf("expected 3 encoded images, got %d", len(got.ImagesBase64))
	}
	for i, img := range photos {
		want := base64.StdEncoding.EncodeToString(img)
		if got.ImagesBase64[i] != want {
			t.Errorf("image %d out of order or corrupted", i)
		}
	}
	if got.ObjectID != "obj-7" || got.DeliveryID != "d-42" {
		t.Errorf("unexpected tags: object=%s delivery=%s", got.ObjectID, got.DeliveryID)
	}
	if got.Date != "2026-08-29" {
		t.Errorf("unexpected date: %s", got.Date)
	}
}

func TestExtractParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"data": map[string]string{"name": "Cement M500", "quantity": "40"}, "file_url": "https://files/inv1.pdf"},
				{"data": map[string]string{"name": "Rebar A500C"}},
			},
		})
	}))
	defer server.Close()

	results, err := newTestExtractor(server).Extract(context.Background(),
		[][]byte{[]byte("x")}, "obj", "d-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].SourceIndex != 0 || results[1].SourceIndex != 1 {
		t.Error("source indexes do not mirror result order")
	}
	if results[0].Fields["name"] != "Cement M500" {
		t.Errorf("unexpected fields: %+v", results[0].Fields)
	}
	if results[0].FileURL != "https://files/inv1.pdf" {
		t.Errorf("unexpected file url: %s", results[0].FileURL)
	}
}

func TestExtractEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer server.Close()

	results, err := newTestExtractor(server).Extract(context.Background(),
		[][]byte{[]byte("x")}, "obj", "d-1", time.Now())
	if err != nil {
		t.Fatalf("empty result set must not be an error, got: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected zero results, got %d", len(results))
	}
}

func TestExtractServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestExtractor(server).Extract(context.Background(),
		[][]byte{[]byte("x")}, "obj", "d-1", time.Now())
	if err == nil {
		t.Fatal("expected error")
	}

	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExtractionError, got %T", err)
	}
	if extErr.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", extErr.Status)
	}
}

func TestEncodeAllPreservesOrder(t *testing.T) {
	images := make([][]byte, 25)
	for i := range images {
		images[i] = []byte{byte(i), byte(i + 1)}
	}

	encoded := encodeAll(images)
	if len(encoded) != len(images) {
		t.Fatalf("expected %d encodings, got %d", len(images), len(encoded))
	}
	for i, img := range images {
		if encoded[i] != base64.StdEncoding.EncodeToString(img) {
			t.Errorf("encoding %d out of order", i)
		}
	}
}
