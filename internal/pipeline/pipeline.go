package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/tourguide/internal/audio"
	"github.com/lehigh-university-libraries/tourguide/internal/models"
	"github.com/lehigh-university-libraries/tourguide/internal/providers"
)

const (
	// UnknownLocation replaces an empty identification answer
	UnknownLocation = "Unknown Location"
	// HistoryUnavailable replaces an empty history answer
	HistoryUnavailable = "History not available."

	IdentifyInstruction = "Identify this landmark. Return only the name of the landmark and its location (City, Country). " +
		"If it is not a famous landmark, describe the scene briefly in a few words."
)

var errNoAudio = errors.New("no inline audio in first response part")

// HistoryPrompt builds the tour guide prompt for a landmark label
func HistoryPrompt(label string) string {
	return fmt.Sprintf(`You are an expert, friendly tour guide. Tell me a fascinating, concise history of "%s".
Focus on the stories and facts a visitor standing in front of it would enjoy most.
Keep it engaging and between 100 and 150 words. Do not use markdown headings.`, label)
}

// Options carries the model identifiers and limits of one orchestrator
type Options struct {
	VisionModel string
	TextModel   string
	SpeechModel string
	Voice       string
	Temperature float64

	// StageTimeout bounds each provider call when positive
	StageTimeout time.Duration
}

// Orchestrator runs the identify, history and narrate stages in order
type Orchestrator struct {
	vision providers.VisionProvider
	text   providers.TextProvider
	speech providers.SpeechProvider
	opts   Options
}

// New returns an orchestrator over the given providers
func New(opts Options, vision providers.VisionProvider, text providers.TextProvider, speech providers.SpeechProvider) *Orchestrator {
	return &Orchestrator{
		vision: vision,
		text:   text,
		speech: speech,
		opts:   opts,
	}
}

// Analyze identifies the landmark in img, retrieves its history and narrates it.
//
// It fails with *MalformedInputError before calling any provider when img is
// unusable, and with *StageError when identification or history fails.
// Narration failures only leave NarrationAudio nil.
//
// Once started a run is not cancelled by ctx; only StageTimeout bounds it.
func (o *Orchestrator) Analyze(ctx context.Context, img models.ImagePayload) (*models.AnalysisResult, error) {
	if err := validateImage(img); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	label, err := o.identify(ctx, img)
	if err != nil {
		return nil, err
	}
	slog.Info("Landmark identified", "label", label)

	history, sources, err := o.history(ctx, label)
	if err != nil {
		return nil, err
	}
	slog.Info("History retrieved", "label", label, "length", len(history), "sources", len(sources))

	narration, narrationErr := o.narrate(ctx, history)

	result := &models.AnalysisResult{
		LandmarkLabel:  label,
		HistoryText:    history,
		NarrationAudio: narration,
		Sources:        sources,
		Duration:       time.Since(start),
	}
	if narrationErr != nil {
		result.NarrationError = narrationErr.Error()
	}

	slog.Info("Analysis complete", "label", label, "audio", result.AudioAvailable(), "duration", result.Duration)
	return result, nil
}

func validateImage(img models.ImagePayload) error {
	if len(img.Data) == 0 {
		return &MalformedInputError{Reason: "image has no data"}
	}
	if !strings.HasPrefix(strings.ToLower(img.ContentType), "image/") {
		return &MalformedInputError{Reason: fmt.Sprintf("content type %q is not an image", img.ContentType)}
	}
	return nil
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.StageTimeout > 0 {
		return context.WithTimeout(ctx, o.opts.StageTimeout)
	}
	return ctx, func() {}
}

func (o *Orchestrator) identify(ctx context.Context, img models.ImagePayload) (string, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()

	text, err := o.vision.DescribeImage(ctx, providers.VisionRequest{
		Model:       o.opts.VisionModel,
		Temperature: o.opts.Temperature,
		Prompt:      IdentifyInstruction,
		Image:       img,
	})
	if err != nil {
		return "", &StageError{Stage: StageIdentify, Err: err}
	}

	label := strings.TrimSpace(text)
	if label == "" {
		label = UnknownLocation
	}
	return label, nil
}

func (o *Orchestrator) history(ctx context.Context, label string) (string, []models.Source, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()

	resp, err := o.text.GenerateText(ctx, providers.TextRequest{
		Model:           o.opts.TextModel,
		Temperature:     o.opts.Temperature,
		Prompt:          HistoryPrompt(label),
		SearchGrounding: true,
	})
	if err != nil {
		return "", nil, &StageError{Stage: StageHistory, Err: err}
	}

	var text string
	var sources []models.Source
	if resp != nil {
		text = strings.TrimSpace(resp.Text)
		sources = resp.Sources
	}
	if text == "" {
		text = HistoryUnavailable
	}
	return text, sources, nil
}

func (o *Orchestrator) narrate(ctx context.Context, text string) (*models.Audio, error) {
	return Degrade(StageNarrate, (*models.Audio)(nil), func() (*models.Audio, error) {
		if o.speech == nil {
			return nil, errors.New("no speech provider configured")
		}

		ctx, cancel := o.stageContext(ctx)
		defer cancel()

		resp, err := o.speech.SynthesizeSpeech(ctx, providers.SpeechRequest{
			Model: o.opts.SpeechModel,
			Text:  text,
			Voice: o.opts.Voice,
		})
		if err != nil {
			return nil, err
		}

		clip := firstInlineAudio(resp)
		if clip == nil {
			return nil, errNoAudio
		}

		wav, err := audio.ToWAV(*clip)
		if err != nil {
			return nil, fmt.Errorf("failed to encode narration: %w", err)
		}
		return &wav, nil
	})
}

// firstInlineAudio only looks at the first part. Audio in a later part is
// treated as absent since the service does not document part ordering.
func firstInlineAudio(resp *providers.SpeechResponse) *models.Audio {
	if resp == nil || len(resp.Parts) == 0 {
		return nil
	}

	part := resp.Parts[0]
	if len(part.Data) == 0 {
		return nil
	}

	mimeType := part.MIMEType
	if mimeType == "" {
		mimeType = fmt.Sprintf("audio/L16;codec=pcm;rate=%d", audio.DefaultSampleRate)
	}
	return &models.Audio{MIMEType: mimeType, Data: part.Data}
}
