package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"settleflow/logger"
)

var (
	runDate   string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the settlement report once",
	Long: `Fetch every configured source for one trade date, write the report and
summary workbooks and rewrite both templates.

The date defaults to yesterday. The run result is printed as JSON and the
command exits non-zero unless the run status is 200.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runDate, "date", "d", "", "Trade date as MM/DD/YYYY (default: yesterday)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "json", "Result format: json or none")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}

	result := a.aggregator.Run(ctx, runDate)

	if runOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	logger.GetLogger().WithComponent("main").WithFields(logger.Fields{
		"run_id": result.RunID,
		"status": result.StatusCode,
	}).Info("run complete")

	if result.StatusCode != http.StatusOK {
		return fmt.Errorf("run finished with status %d: %s", result.StatusCode, result.StatusDescription)
	}
	return nil
}
