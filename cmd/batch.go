package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/tourguide/internal/batch"
	"github.com/lehigh-university-libraries/tourguide/internal/pipeline"
	"github.com/spf13/cobra"
)

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var (
		manifest    string
		outputDir   string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the pipeline over a manifest of images",
		Long: `Processes every image listed in a manifest and writes a report.

The manifest can be a directory of images, a JSONL file with one
{"id", "image_path"} object per line, or a Parquet file with id and
image_path columns.

Outputs written to --output:
  results.yaml     run configuration, summary and per-image results
  results.parquet  one row per image
  <id>.wav         narration audio for each image that produced it`,
		Example: `  # Process a directory of photos
  tourguide batch --manifest ./photos --output ./tour

  # Process a JSONL manifest with 4 workers
  tourguide batch --manifest landmarks.jsonl --output ./tour --concurrency 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			items, err := batch.LoadManifest(manifest)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no images found in manifest %s", manifest)
			}

			orchestrator, err := pipeline.NewFromConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			start := time.Now()
			runner := batch.NewRunner(orchestrator, outputDir, concurrency)
			records, err := runner.Run(cmd.Context(), items)
			if err != nil {
				return err
			}

			report := batch.NewReport(batch.ReportConfig{
				VisionProvider: cfg.VisionProvider,
				SpeechProvider: cfg.SpeechProvider,
				Manifest:       manifest,
				Concurrency:    concurrency,
				Timestamp:      start.Format("2006-01-02_15-04-05"),
			}, records)

			yamlPath, err := report.SaveYAML(outputDir)
			if err != nil {
				return err
			}
			parquetPath, err := report.SaveParquet(outputDir)
			if err != nil {
				return err
			}

			slog.Info("Batch complete",
				"total", report.Summary.Total,
				"succeeded", report.Summary.Succeeded,
				"failed", report.Summary.Failed,
				"with_audio", report.Summary.WithAudio,
				"duration", time.Since(start).Round(time.Millisecond))

			fmt.Fprintf(cmd.OutOrStdout(), "\n✅ Results saved to: %s\n", yamlPath)
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Parquet saved to: %s\n", parquetPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "Directory, JSONL or Parquet manifest of images")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "tour-output", "Output directory")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Number of images processed in parallel")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}
