package providers

import (
	"context"

	"github.com/lehigh-university-libraries/tourguide/internal/models"
)

// VisionRequest asks a multimodal model about a single image
type VisionRequest struct {
	Model       string
	Temperature float64
	Prompt      string
	Image       models.ImagePayload
}

// TextRequest asks a text model to answer a prompt
type TextRequest struct {
	Model       string
	Temperature float64
	Prompt      string
	// SearchGrounding lets the model consult live web search while answering
	SearchGrounding bool
}

// TextResponse is the answer to a TextRequest
type TextResponse struct {
	Text    string
	Sources []models.Source
}

// SpeechRequest asks a speech model to read text aloud with one prebuilt voice
type SpeechRequest struct {
	Model string
	Text  string
	Voice string
}

// Part is one piece of a speech model response, in the order the service returned it
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// SpeechResponse holds the response parts of a speech request
type SpeechResponse struct {
	Parts []Part
}

// VisionProvider describes images
type VisionProvider interface {
	DescribeImage(ctx context.Context, req VisionRequest) (string, error)
}

// TextProvider generates text, optionally grounded in web search
type TextProvider interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResponse, error)
}

// SpeechProvider synthesizes speech
type SpeechProvider interface {
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) (*SpeechResponse, error)
}
