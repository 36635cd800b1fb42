package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate document files without storing them",
	Long: `Check each file's header block and typed fields against the document
schema. Exits with an error when any file is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var validateQuiet bool

func init() {
	validateCmd.Flags().BoolVarP(&validateQuiet, "quiet", "q", false, "only report invalid files")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	invalid := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		res, err := documentService.ValidateFile(cmd.Context(), data)
		if err != nil {
			return fmt.Errorf("failed to validate %s: %w", path, err)
		}
		if !res.Valid {
			invalid++
		} else if validateQuiet {
			continue
		}

		mark := ui.Success.Render("✓")
		if !res.Valid {
			mark = ui.Error.Render("✗")
		}
		cmd.Printf("%s %s  %s\n", mark, path, ui.Score(res.Score).Render(fmt.Sprintf("score %d", res.Score)))
		printIssues(cmd, res)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d files invalid: %w", invalid, len(args), domain.ErrValidationFailed)
	}
	return nil
}

func printIssues(cmd *cobra.Command, res domain.ValidationResult) {
	for _, e := range res.Errors {
		cmd.Printf("    %s %s: %s\n", ui.Severity(e.Severity).Render(e.Code), e.Field, e.Message)
	}
	for _, w := range res.Warnings {
		cmd.Printf("    %s %s", ui.Warning.Render(w.Code), w.Message)
		if w.Suggestion != "" {
			cmd.Printf(" (%s)", w.Suggestion)
		}
		cmd.Println()
	}
}
