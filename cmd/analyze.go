package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lehigh-university-libraries/tourguide/internal/images"
	"github.com/lehigh-university-libraries/tourguide/internal/models"
	"github.com/lehigh-university-libraries/tourguide/internal/pipeline"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		audioOut   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "analyze IMAGE",
		Short: "Identify a landmark in one photo and narrate its history",
		Long: `Runs the full pipeline on a single image. IMAGE may be a file path,
an http(s) URL or a data URL.

The narration is written to --audio-out when the speech stage produces audio.`,
		Example: `  # Print the landmark and history
  tourguide analyze photo.jpg

  # Save the narration and print JSON
  tourguide analyze photo.jpg --audio-out narration.wav --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			img, err := images.NewFetcher().Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			orchestrator, err := pipeline.NewFromConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			result, err := orchestrator.Analyze(cmd.Context(), img)
			if err != nil {
				return err
			}

			if audioOut != "" && result.AudioAvailable() {
				if err := os.WriteFile(audioOut, result.NarrationAudio.Data, 0644); err != nil {
					return fmt.Errorf("failed to write narration: %w", err)
				}
			}

			return printResult(cmd.OutOrStdout(), result, audioOut, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&audioOut, "audio-out", "o", "", "Write the narration audio to this file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func printResult(w io.Writer, result *models.AnalysisResult, audioOut string, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*models.AnalysisResult
			AudioAvailable bool   `json:"audio_available"`
			AudioPath      string `json:"audio_path,omitempty"`
		}{result, result.AudioAvailable(), audioPathIfWritten(result, audioOut)})
	}

	fmt.Fprintf(w, "%s\n\n%s\n", result.LandmarkLabel, result.HistoryText)
	if len(result.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range result.Sources {
			fmt.Fprintf(w, "  - %s (%s)\n", s.Title, s.URI)
		}
	}

	switch {
	case !result.AudioAvailable():
		fmt.Fprintln(w, "\nAudio unavailable")
	case audioOut != "":
		fmt.Fprintf(w, "\nNarration saved to: %s\n", audioOut)
	}
	return nil
}

func audioPathIfWritten(result *models.AnalysisResult, audioOut string) string {
	if result.AudioAvailable() {
		return audioOut
	}
	return ""
}
