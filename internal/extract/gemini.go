package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/buildlens/delivery-intake/internal/jsonutil"
)

// geminiSystemPrompt instructs the model to behave like the extraction
// service: one JSON object per invoice, free-form field names preserved.
const geminiSystemPrompt = `You are an invoice line-item extraction service for construction material deliveries.
You receive photographs of delivery invoices. For each invoice, extract the material line items.
Respond with a JSON array only. Each element is an object of the form
{"data": {"name": "...", "quantity": "...", "size": "...", "volume": "...", "netWeight": "...", "weight": "...", "unit": "...", "supplier": "..."}}.
Omit fields you cannot read. Keep all values as strings exactly as printed. Do not convert units.`

// GeminiExtractor implements Extractor against the Gemini API for
// deployments without access to the dedicated extraction backend.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor using the given API key and model.
func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

type geminiEntry struct {
	Data map[string]string `json:"data"`
}

// Extract sends all invoice photos inline in one GenerateContent call and
// parses the model's JSON array into extraction results.
func (g *GeminiExtractor) Extract(ctx context.Context, images [][]byte, objectID, deliveryID string, date time.Time) ([]Result, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: geminiSystemPrompt}},
		},
	}

	var parts []*genai.Part
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: "image/jpeg",
				Data:     img,
			},
		})
	}
	parts = append(parts, &genai.Part{
		Text: fmt.Sprintf("Object %s, delivery %s, delivered %s. Extract the material line items from these %d invoice photos.",
			objectID, deliveryID, date.Format("2006-01-02"), len(images)),
	})

	startTime := time.Now()
	log.Info().
		Str("model", g.model).
		Str("deliveryId", deliveryID).
		Int("images", len(images)).
		Msg("Sending invoice photos to Gemini for extraction")

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	duration := time.Since(startTime)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Gemini extraction failed")
		return nil, &ExtractionError{Status: 0, Detail: err.Error()}
	}

	text := resp.Text()
	log.Debug().Dur("duration", duration).Int("responseChars", len(text)).Msg("Gemini extraction response")

	raw, err := jsonutil.ExtractJSONArray(text)
	if err != nil {
		return nil, &ExtractionError{Status: 0, Detail: fmt.Sprintf("unparseable model response: %v", err)}
	}

	var entries []geminiEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &ExtractionError{Status: 0, Detail: fmt.Sprintf("invalid JSON from model: %v", err)}
	}

	results := make([]Result, 0, len(entries))
	for i, e := range entries {
		results = append(results, Result{SourceIndex: i, Fields: e.Data})
	}
	return results, nil
}
