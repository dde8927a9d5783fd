package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds everything needed to build the analysis pipeline.
// It is loaded once by the CLI and passed explicitly into constructors.
type Config struct {
	// VisionProvider selects the backend of the identification stage
	VisionProvider string `yaml:"vision_provider"`
	// SpeechProvider selects the backend of the narration stage
	SpeechProvider string `yaml:"speech_provider"`

	Temperature float64 `yaml:"temperature"`

	// StageTimeout bounds each provider call. Zero leaves calls unbounded.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Ollama OllamaConfig `yaml:"ollama"`
}

type GeminiConfig struct {
	APIKey      string `yaml:"api_key"`
	VisionModel string `yaml:"vision_model"`
	TextModel   string `yaml:"text_model"`
	SpeechModel string `yaml:"speech_model"`
	Voice       string `yaml:"voice"`
}

type OpenAIConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	VisionModel string `yaml:"vision_model"`
	SpeechModel string `yaml:"speech_model"`
	Voice       string `yaml:"voice"`
}

type OllamaConfig struct {
	URL         string `yaml:"url"`
	VisionModel string `yaml:"vision_model"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		VisionProvider: ProviderGemini,
		SpeechProvider: ProviderGemini,
		Temperature:    0.4,
		MaxUploadBytes: 10 * 1024 * 1024,
		Gemini: GeminiConfig{
			VisionModel: "gemini-2.5-flash",
			TextModel:   "gemini-2.5-flash",
			SpeechModel: "gemini-2.5-flash-preview-tts",
			Voice:       "Kore",
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			VisionModel: "gpt-4o",
			SpeechModel: "gpt-4o-mini-tts",
			Voice:       "alloy",
		},
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			VisionModel: "mistral-small3.2:24b",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and the environment,
// in that order of precedence (environment wins).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.VisionProvider, "TOURGUIDE_VISION_PROVIDER")
	setString(&c.SpeechProvider, "TOURGUIDE_SPEECH_PROVIDER")

	if v := os.Getenv("TOURGUIDE_STAGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TOURGUIDE_STAGE_TIMEOUT %q: %w", v, err)
		}
		c.StageTimeout = d
	}

	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	if c.Gemini.APIKey == "" {
		setString(&c.Gemini.APIKey, "GOOGLE_API_KEY")
	}
	setString(&c.Gemini.VisionModel, "GEMINI_VISION_MODEL")
	setString(&c.Gemini.TextModel, "GEMINI_TEXT_MODEL")
	setString(&c.Gemini.SpeechModel, "GEMINI_TTS_MODEL")
	setString(&c.Gemini.Voice, "TOURGUIDE_VOICE")

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.VisionModel, "OPENAI_MODEL")
	setString(&c.OpenAI.SpeechModel, "OPENAI_TTS_MODEL")
	setString(&c.OpenAI.Voice, "OPENAI_VOICE")

	setString(&c.Ollama.URL, "OLLAMA_HOST")
	setString(&c.Ollama.URL, "OLLAMA_URL")
	setString(&c.Ollama.VisionModel, "OLLAMA_MODEL")

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the selected providers are known and have credentials
func (c Config) Validate() error {
	var errs []error

	switch c.VisionProvider {
	case ProviderGemini, ProviderOpenAI, ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unsupported vision provider: %s", c.VisionProvider))
	}

	switch c.SpeechProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unsupported speech provider: %s", c.SpeechProvider))
	}

	// the history stage always runs on Gemini for search grounding
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY environment variable not set"))
	}
	if (c.VisionProvider == ProviderOpenAI || c.SpeechProvider == ProviderOpenAI) && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY environment variable not set"))
	}
	if c.StageTimeout < 0 {
		errs = append(errs, fmt.Errorf("stage_timeout must not be negative: %s", c.StageTimeout))
	}

	return errors.Join(errs...)
}
