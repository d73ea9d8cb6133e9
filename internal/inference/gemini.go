package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/genai-kitchen/internal/assets"
)

// ContentGenerator is the part of the genai client used here; *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements Generator with a Gemini image model.
type GeminiClient struct {
	models       ContentGenerator
	defaultModel string
}

// NewGeminiClient creates a Gemini API client authenticated with apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewGeminiClientFrom(client.Models), nil
}

// NewGeminiClientFrom wraps an existing content generator.
func NewGeminiClientFrom(models ContentGenerator) *GeminiClient {
	return &GeminiClient{models: models, defaultModel: GetModelName()}
}

// Models exposes the underlying generator, e.g. for key validation.
func (c *GeminiClient) Models() ContentGenerator {
	return c.models
}

// Generate sends the source image, references, optional mask and the
// operation instruction, and returns every image in the response.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	parts := []*genai.Part{{InlineData: &genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data}}}
	for _, ref := range req.References {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data}})
	}
	if req.Mask != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: req.Mask.MIMEType, Data: req.Mask.Data}})
	}
	parts = append(parts, &genai.Part{Text: BuildInstruction(req)})

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.SystemInstruction}},
		},
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	applyParams(config, req.Params)

	log.Info().
		Str("model", model).
		Str("operation", string(req.Operation)).
		Int("image_bytes", len(req.Image.Data)).
		Int("references", len(req.References)).
		Bool("masked", req.Mask != nil).
		Msg("Sending kitchen photo to Gemini")

	start := time.Now()
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Gemini image generation failed")
		return nil, ClassifyError(err)
	}

	result := parseResponse(resp)
	result.Model = model
	log.Debug().
		Int("images", len(result.Images)).
		Int("text_length", len(result.Text)).
		Dur("duration", duration).
		Msg("Gemini response received")

	if len(result.Images) == 0 {
		if result.Text != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoImage, truncate(result.Text, 200))
		}
		return nil, ErrNoImage
	}
	return result, nil
}

func parseResponse(resp *genai.GenerateContentResponse) *Result {
	result := &Result{}
	if resp == nil {
		return result
	}
	var text []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch {
			case part == nil:
			case part.InlineData != nil && len(part.InlineData.Data) > 0:
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				result.Images = append(result.Images, Image{Data: part.InlineData.Data, MIMEType: mime})
			case part.Text != "":
				text = append(text, part.Text)
			}
		}
	}
	result.Text = strings.Join(text, "\n")
	return result
}

// applyParams copies the supported generation parameters into config.
// JSON numbers arrive as float64.
func applyParams(config *genai.GenerateContentConfig, params map[string]any) {
	if v, ok := number(params["temperature"]); ok {
		t := float32(v)
		config.Temperature = &t
	}
	if v, ok := number(params["seed"]); ok {
		s := int32(v)
		config.Seed = &s
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
