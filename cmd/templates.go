package cmd

import (
	"github.com/spf13/cobra"

	"settleflow/internal/workbook"
	"settleflow/logger"
)

var (
	templateMonths    int
	templateOverwrite bool
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Write starter report and summary templates",
	Long: `Create the data template (one sheet per configured source with a header
row and a row of table markers) and the summary template at the paths named
in the report section of the configuration.`,
	RunE: writeTemplates,
}

func init() {
	templatesCmd.Flags().IntVar(&templateMonths, "months", 12, "Contract month columns per source sheet")
	templatesCmd.Flags().BoolVar(&templateOverwrite, "force", false, "Replace existing templates")
	rootCmd.AddCommand(templatesCmd)
}

func writeTemplates(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sheets := make([]workbook.Sheet, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sheets = append(sheets, workbook.DataSheet(src, templateMonths))
	}
	if err := workbook.Scaffold(cfg.Report.DataTemplate, sheets, templateOverwrite); err != nil {
		return err
	}
	if err := workbook.Scaffold(cfg.Report.SummaryTemplate, []workbook.Sheet{workbook.SummarySheet()}, templateOverwrite); err != nil {
		return err
	}

	logger.GetLogger().WithComponent("main").WithFields(logger.Fields{
		"data_template":    cfg.Report.DataTemplate,
		"summary_template": cfg.Report.SummaryTemplate,
		"sources":          len(sheets),
	}).Info("templates written")
	return nil
}
