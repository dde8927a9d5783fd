package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/tourguide/internal/models"
	"github.com/lehigh-university-libraries/tourguide/internal/providers"
	"google.golang.org/genai"
)

// Gemini is a provider for Google Gemini. It serves all three pipeline stages.
type Gemini struct {
	client *genai.Client
}

// New returns a new Gemini provider
func New(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	return &Gemini{client: client}, nil
}

// DescribeImage sends the image and prompt to a multimodal model
func (g *Gemini) DescribeImage(ctx context.Context, req providers.VisionRequest) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image.Data, req.Image.ContentType),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, &genai.GenerateContentConfig{
		Temperature: temperature(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return responseText(resp), nil
}

// GenerateText answers a prompt, attaching the Google Search tool when grounding is requested
func (g *Gemini) GenerateText(ctx context.Context, req providers.TextRequest) (*providers.TextResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), textConfig(req))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	sources := groundingSources(resp)
	slog.Debug("Gemini text response", "model", req.Model, "grounded", req.SearchGrounding, "sources", len(sources))

	return &providers.TextResponse{
		Text:    responseText(resp),
		Sources: sources,
	}, nil
}

// SynthesizeSpeech reads text aloud with a single prebuilt voice
func (g *Gemini) SynthesizeSpeech(ctx context.Context, req providers.SpeechRequest) (*providers.SpeechResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Text), speechConfig(req))
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}

	return &providers.SpeechResponse{Parts: responseParts(resp)}, nil
}

func textConfig(req providers.TextRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: temperature(req.Temperature),
	}
	if req.SearchGrounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return config
}

func speechConfig(req providers.SpeechRequest) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: req.Voice,
				},
			},
		},
	}
}

func temperature(t float64) *float32 {
	if t <= 0 {
		return nil
	}
	v := float32(t)
	return &v
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, p := range responseParts(resp) {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// responseParts flattens the first candidate's parts, preserving order
func responseParts(resp *genai.GenerateContentResponse) []providers.Part {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return nil
	}

	parts := make([]providers.Part, 0, len(candidate.Content.Parts))
	for _, p := range candidate.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		part := providers.Part{Text: p.Text}
		if p.InlineData != nil {
			part.MIMEType = p.InlineData.MIMEType
			part.Data = p.InlineData.Data
		}
		parts = append(parts, part)
	}
	return parts
}

// groundingSources collects web citations, dropping duplicates
func groundingSources(resp *genai.GenerateContentResponse) []models.Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}

	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}

	seen := make(map[string]bool)
	var sources []models.Source
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		sources = append(sources, models.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return sources
}
