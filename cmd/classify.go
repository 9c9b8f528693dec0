package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/example/mri-check/internal/classifier"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image>",
	Short: "Classify a local MRI image and print the class probabilities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}

		backend := newModelBackend(app.cfg, app.logger)
		defer backend.Close()

		prediction, err := classifier.New(backend.lazy(), app.logger).Predict(cmd.Context(), data)
		if err != nil {
			return fmt.Errorf("classify %s: %w", args[0], err)
		}

		printPrediction(cmd.OutOrStdout(), prediction)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func printPrediction(w io.Writer, prediction classifier.Prediction) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Class", "Probability"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, label := range classifier.Labels {
		probability := "-"
		if i < len(prediction.Probabilities) {
			probability = fmt.Sprintf("%.2f%%", prediction.Probabilities[i]*100)
		}
		if i == prediction.Index {
			label = color.GreenString(label)
		}
		table.Append([]string{label, probability})
	}
	table.Render()

	fmt.Fprintf(w, "\nPrediction: %s (Confidence: %.2f%%)\n", color.New(color.Bold).Sprint(prediction.Label), prediction.Confidence)
}
