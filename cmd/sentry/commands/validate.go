package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

var validateCmd = &cobra.Command{
	Use:          "validate <file>",
	Short:        "Check whether a log file parses at an acceptable rate",
	Args:         cobra.ExactArgs(1),
	RunE:         runValidate,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	report := parser.New(zap.NewNop()).Validate(string(data))
	if report.Valid {
		fmt.Printf("%s: OK (%.0f%% of %d sampled lines parsed)\n",
			args[0], report.YieldRate*100, report.SampledLine)
		return nil
	}

	return fmt.Errorf("%s: invalid log format: %s", args[0], report.Reason)
}
