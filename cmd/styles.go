package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/config"
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List the style catalog",
	Long: `List face shape categories with their sticker variants and the personal tones.

Examples:
  stylemate styles
  stylemate styles --json`,
	RunE: runStyles,
}

func init() {
	rootCmd.AddCommand(stylesCmd)
	stylesCmd.Flags().Bool("json", false, "Output as JSON")
}

type stylesOutput struct {
	Shapes []*catalog.Shape `json:"shapes"`
	Tones  []*catalog.Tone  `json:"tones"`
}

func runStyles(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(config.Load())
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(stylesOutput{Shapes: cat.Shapes(), Tones: cat.Tones()})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STYLE\tSTICKER\tSCALE\tY OFFSET")
	for _, s := range cat.Shapes() {
		for _, length := range []catalog.Length{catalog.Short, catalog.Long} {
			spec := s.Sticker(length)
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\n",
				catalog.StyleKey(s.Name, length), spec.AssetPath, spec.ScaleFactor, spec.YOffsetRatio)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TONE\tSUMMARY")
	for _, t := range cat.Tones() {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Summary)
	}
	return w.Flush()
}
