package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/tourguide/internal/images"
	"github.com/lehigh-university-libraries/tourguide/internal/models"
)

// Analyzer runs the landmark pipeline on one image
type Analyzer interface {
	Analyze(ctx context.Context, img models.ImagePayload) (*models.AnalysisResult, error)
}

// Record is the outcome of one manifest item
type Record struct {
	ID             string   `yaml:"id" parquet:"id"`
	ImagePath      string   `yaml:"image_path" parquet:"image_path"`
	LandmarkLabel  string   `yaml:"landmark_label,omitempty" parquet:"landmark_label"`
	HistoryText    string   `yaml:"history_text,omitempty" parquet:"history_text"`
	AudioPath      string   `yaml:"audio_path,omitempty" parquet:"audio_path"`
	SourceURIs     []string `yaml:"source_uris,omitempty" parquet:"source_uris"`
	NarrationError string   `yaml:"narration_error,omitempty" parquet:"narration_error"`
	Error          string   `yaml:"error,omitempty" parquet:"error"`
	DurationMS     int64    `yaml:"duration_ms" parquet:"duration_ms"`
}

// Runner analyzes manifest items with bounded concurrency
type Runner struct {
	analyzer    Analyzer
	fetcher     *images.Fetcher
	outputDir   string
	concurrency int
}

// NewRunner creates a runner writing narration files to outputDir
func NewRunner(analyzer Analyzer, outputDir string, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		analyzer:    analyzer,
		fetcher:     images.NewFetcher(),
		outputDir:   outputDir,
		concurrency: concurrency,
	}
}

// Run processes every item and returns one record per item, in manifest order.
// Item failures are recorded, not returned.
func (r *Runner) Run(ctx context.Context, items []Item) ([]Record, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	slog.Info("Processing items", "items", len(items), "concurrency", r.concurrency)

	records := make([]Record, len(items))
	names := audioNames(items)
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, r.concurrency)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, item Item) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			if ctx.Err() != nil {
				records[idx] = Record{ID: item.ID, ImagePath: item.ImagePath, Error: "cancelled before start"}
				return
			}

			slog.Info("Processing item", "id", item.ID, "progress", fmt.Sprintf("%d/%d", idx+1, len(items)))
			records[idx] = r.processItem(ctx, item, names[idx])
		}(i, item)
	}

	wg.Wait()
	return records, nil
}

func (r *Runner) processItem(ctx context.Context, item Item, name string) Record {
	start := time.Now()
	record := Record{
		ID:        item.ID,
		ImagePath: item.ImagePath,
	}

	img, err := r.fetcher.Load(ctx, item.ImagePath)
	if err != nil {
		record.Error = fmt.Sprintf("failed to load image: %v", err)
		record.DurationMS = time.Since(start).Milliseconds()
		return record
	}

	result, err := r.analyzer.Analyze(ctx, img)
	if err != nil {
		slog.Error("Item failed", "id", item.ID, "err", err)
		record.Error = err.Error()
		record.DurationMS = time.Since(start).Milliseconds()
		return record
	}

	record.LandmarkLabel = result.LandmarkLabel
	record.HistoryText = result.HistoryText
	record.NarrationError = result.NarrationError
	for _, s := range result.Sources {
		record.SourceURIs = append(record.SourceURIs, s.URI)
	}

	if result.AudioAvailable() {
		path := filepath.Join(r.outputDir, name+audioExtension(result.NarrationAudio.MIMEType))
		if err := os.WriteFile(path, result.NarrationAudio.Data, 0644); err != nil {
			slog.Warn("Failed to write narration", "id", item.ID, "err", err)
			record.NarrationError = fmt.Sprintf("failed to write narration: %v", err)
		} else {
			record.AudioPath = path
		}
	}

	record.DurationMS = time.Since(start).Milliseconds()
	return record
}

// audioNames gives every item a distinct narration file name, even when
// their IDs reduce to the same safe name
func audioNames(items []Item) []string {
	unique := make([]Item, len(items))
	copy(unique, items)
	uniqueIDs(unique)

	names := make([]string, len(unique))
	for i, item := range unique {
		names[i] = safeFilename(item.ID)
	}
	return names
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeFilename(id string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(id, "_"), "._")
	if name == "" {
		return "item"
	}
	return name
}

func audioExtension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "ogg"), strings.Contains(mimeType, "opus"):
		return ".ogg"
	default:
		return ".audio"
	}
}
