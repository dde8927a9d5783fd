package pipeline

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/tourguide/internal/config"
	"github.com/lehigh-university-libraries/tourguide/internal/gemini"
	"github.com/lehigh-university-libraries/tourguide/internal/ollama"
	"github.com/lehigh-university-libraries/tourguide/internal/openai"
	"github.com/lehigh-university-libraries/tourguide/internal/providers"
)

// NewFromConfig wires the providers selected in cfg into an orchestrator.
// The history stage always runs on Gemini since it needs search grounding.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g, err := gemini.New(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return nil, err
	}

	var oa *openai.OpenAI
	if cfg.VisionProvider == config.ProviderOpenAI || cfg.SpeechProvider == config.ProviderOpenAI {
		oa, err = openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	opts := Options{
		TextModel:    cfg.Gemini.TextModel,
		Temperature:  cfg.Temperature,
		StageTimeout: cfg.StageTimeout,
	}

	var vision providers.VisionProvider
	switch cfg.VisionProvider {
	case config.ProviderGemini:
		vision = g
		opts.VisionModel = cfg.Gemini.VisionModel
	case config.ProviderOpenAI:
		vision = oa
		opts.VisionModel = cfg.OpenAI.VisionModel
	case config.ProviderOllama:
		vision = ollama.New(cfg.Ollama.URL)
		opts.VisionModel = cfg.Ollama.VisionModel
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", cfg.VisionProvider)
	}

	var speech providers.SpeechProvider
	switch cfg.SpeechProvider {
	case config.ProviderGemini:
		speech = g
		opts.SpeechModel = cfg.Gemini.SpeechModel
		opts.Voice = cfg.Gemini.Voice
	case config.ProviderOpenAI:
		speech = oa
		opts.SpeechModel = cfg.OpenAI.SpeechModel
		opts.Voice = cfg.OpenAI.Voice
	default:
		return nil, fmt.Errorf("unsupported speech provider: %s", cfg.SpeechProvider)
	}

	return New(opts, vision, g, speech), nil
}
