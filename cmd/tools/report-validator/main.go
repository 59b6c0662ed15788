// cmd/tools/report-validator/main.go
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vsme-guru/internal/models"
	"vsme-guru/internal/wizard/schema"
)

var errInvalidReport = errors.New("report is invalid")

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		if !errors.Is(err, errInvalidReport) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "report-validator",
		Short:         "Validate VSME report documents against the wizard schemas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(newValidateCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	var (
		file string
		step int
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a report JSON file",
		Example: `  report-validator validate --file report.json
  report-validator validate --file report.json --step 2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.OutOrStdout(), file, step)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the report JSON file")
	cmd.Flags().IntVarP(&step, "step", "s", 0, "Validate a single step (default: all steps)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runValidate(out io.Writer, file string, step int) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	document, err := decodeReport(raw)
	if err != nil {
		return fmt.Errorf("parse report: %w", err)
	}

	validator := schema.MustNew()

	steps := make([]int, 0, validator.Steps())
	switch {
	case step == 0:
		for s := 1; s <= validator.Steps(); s++ {
			steps = append(steps, s)
		}
	case step < 1 || step > validator.Steps():
		return fmt.Errorf("step %d out of range (steps 1..%d)", step, validator.Steps())
	default:
		steps = append(steps, step)
	}

	valid := true
	for _, s := range steps {
		result := validator.ValidateStep(s, document)
		if result.Valid() {
			continue
		}
		valid = false
		fmt.Fprintf(out, "# Step %d: %s\n", s, validator.Title(s))
		for _, issue := range result.Issues {
			path := issue.Path
			if path == "" {
				path = "(root)"
			}
			fmt.Fprintf(out, "%s: %s\n", path, issue.Message)
		}
	}

	if !valid {
		return errInvalidReport
	}
	fmt.Fprintf(out, "%s: valid\n", file)
	return nil
}

// decodeReport prefers the typed FormData. A value of the wrong type is kept
// in a raw document instead so the step schemas can report it by path.
func decodeReport(raw []byte) (interface{}, error) {
	data, err := models.ParseFormData(raw)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, models.ErrInvalidValue) {
		return nil, err
	}
	doc, overlayErr := models.OverlayDocument(raw)
	if overlayErr != nil {
		return nil, overlayErr
	}
	return doc, nil
}
