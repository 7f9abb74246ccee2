package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/config"
	"github.com/kozaktomas/stylemate/internal/session"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify face shape or personal tone of a photo",
	Long: `Detect the face in a photo, classify it with the selected model and print
the recommendation for the most likely label.

Models:
  face-shape (1)  Oval, Round, Square, Heart, Oblong
  tone (2)        Cool, Warm

Examples:
  stylemate analyze --image me.jpg
  stylemate analyze --image me.jpg --model tone --classifier gemini
  stylemate analyze --image me.jpg --json`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("image", "", "Photo to analyze (required)")
	analyzeCmd.Flags().String("model", "face-shape", "Analysis model: face-shape or tone")
	analyzeCmd.Flags().String("classifier", "", "Classifier backend: openai, gemini or ollama")
	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
	_ = analyzeCmd.MarkFlagRequired("image")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	model, err := catalog.ParseModel(mustGetString(cmd, "model"))
	if err != nil {
		return err
	}

	svc, err := newServices(cfg, mustGetString(cmd, "classifier"))
	if err != nil {
		return err
	}
	defer svc.close()

	img, err := readImage(mustGetString(cmd, "image"))
	if err != nil {
		return err
	}

	deps := svc.sessionDeps()
	clf, err := deps.Classifiers(ctx, model)
	if err != nil {
		return fmt.Errorf("creating %s classifier: %w", svc.classifier, err)
	}

	analysis, err := deps.Analyzer.Run(ctx, img, model, clf, nil)
	if err != nil {
		return withHint(err)
	}

	if mustGetBool(cmd, "json") {
		out := analyzeOutput{Analysis: analysis}
		if usage, ok := classify.UsageOf(clf); ok {
			out.Usage = &usage
		}
		return outputJSON(out)
	}
	printAnalysis(analysis)
	printUsage(clf)
	return nil
}

// analyzeOutput is the --json shape: the analysis plus metered usage.
type analyzeOutput struct {
	*session.Analysis
	Usage *classify.Usage `json:"usage,omitempty"`
}

func printAnalysis(a *session.Analysis) {
	fmt.Println(a.Model.DisplayName())
	fmt.Printf("Face: %s, confidence %.2f\n\n", a.Box, a.Confidence)

	for _, p := range a.Predictions {
		bar := strings.Repeat("#", int(p.Probability*30+0.5))
		fmt.Printf("  %-8s %5.1f%%  %s\n", p.ClassName, p.Probability*100, bar)
	}

	switch {
	case a.Shape != nil:
		fmt.Printf("\n%s: %s\n", a.Shape.Name, a.Shape.Summary)
		fmt.Printf("  Short: %s\n", a.Shape.ShortText)
		fmt.Printf("  Long:  %s\n", a.Shape.LongText)
		fmt.Printf("  Try:   %s, %s\n",
			catalog.StyleKey(a.Shape.Name, catalog.Short), catalog.StyleKey(a.Shape.Name, catalog.Long))
	case a.Tone != nil:
		fmt.Printf("\n%s: %s\n", a.Tone.Name, a.Tone.Summary)
		fmt.Printf("  Hair:     %s\n", a.Tone.Hair)
		fmt.Printf("  Clothing: %s\n", a.Tone.Clothing)
		fmt.Printf("  Makeup:   %s\n", a.Tone.Makeup)
	}
}
