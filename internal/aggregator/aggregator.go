// Package aggregator drives one run: it resolves every configured source,
// renders the data and summary workbooks once and archives the result.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"settleflow/internal/reportline"
	"settleflow/internal/tradedate"
	"settleflow/internal/workbook"
	"settleflow/logger"
	"settleflow/models"
)

// Status descriptions of a run.
const (
	DescOK            = "OK"
	DescPartial       = "Completed with failed sources"
	DescInvalidDate   = "Wrong date format, expected MM/DD/YYYY"
	DescTemplate      = "Template error"
	DescWrite         = "Failed to write workbooks"
	DescNotTradingDay = "Skipped: not a trading day"
)

// Fetcher resolves one source for one date.
type Fetcher interface {
	Fetch(ctx context.Context, date string, profile models.SourceProfile) models.SourceResult
}

// Renderer writes the workbooks of a run.
type Renderer interface {
	Render(jobs ...workbook.Job) error
}

// Archiver stores the normalised settlements of a run.
type Archiver interface {
	Write(runID string, runDate time.Time, results []models.SourceResult) (string, int, error)
}

// Publisher copies run artifacts to remote storage.
type Publisher interface {
	Publish(ctx context.Context, runDate time.Time, files ...string) ([]string, error)
}

// Observer records run metrics.
type Observer interface {
	ObserveRun(ctx context.Context, res models.RunResult, elapsed time.Duration)
}

// Report names the workbook files of a run.
type Report struct {
	DataTemplate    string
	SummaryTemplate string
	DataOutput      string
	SummaryOutput   string
	// Timestamped appends _YYYYMMDD to output names.
	Timestamped bool
}

// Options configures an Aggregator. Archiver, Publisher and Observer are
// optional.
type Options struct {
	Sources   []models.SourceProfile
	Calendar  *tradedate.Calendar
	Report    Report
	Archiver  Archiver
	Publisher Publisher
	Observer  Observer
	Now       func() time.Time
}

type Aggregator struct {
	fetcher Fetcher
	engine  Renderer
	opts    Options
	log     *logger.Entry
}

func New(fetcher Fetcher, engine Renderer, opts Options) *Aggregator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		fetcher: fetcher,
		engine:  engine,
		opts:    opts,
		log:     logger.GetLogger().WithComponent("aggregator"),
	}
}

// Run executes a run for date (MM/DD/YYYY); an empty date means yesterday.
// Source failures are reported per source and never abort the run; only a
// template or write failure changes the overall status.
func (a *Aggregator) Run(ctx context.Context, date string) models.RunResult {
	start := time.Now()
	runID := uuid.NewString()
	if date == "" {
		date = tradedate.Yesterday(a.opts.Now())
	}
	log := a.log.WithFields(logger.Fields{"run_id": runID, "date": date})

	result := a.run(logger.ContextWithRunID(ctx, runID), runID, date, log)

	elapsed := time.Since(start)
	if a.opts.Observer != nil {
		a.opts.Observer.ObserveRun(ctx, result, elapsed)
	}
	logger.LogPerformanceEntry(log, "aggregator", "run", elapsed, logger.Fields{
		"status":  result.StatusCode,
		"sources": len(result.Sources),
	})
	return result
}

func (a *Aggregator) run(ctx context.Context, runID, date string, log *logger.Entry) models.RunResult {
	runDate, err := tradedate.Parse(date)
	if err != nil {
		log.WithError(err).Warn("rejected run date")
		return models.RunResult{RunID: runID, StatusCode: http.StatusBadRequest, StatusDescription: DescInvalidDate}
	}

	log.WithFields(logger.Fields{"sources": len(a.opts.Sources)}).Info("run started")
	results := a.resolveAll(ctx, date)
	data := collect(results)

	dataJob, summaryJob := a.jobs(runDate, results)
	if err := a.engine.Render(dataJob, summaryJob); err != nil {
		var te *workbook.TemplateError
		desc := DescWrite
		if errors.As(err, &te) {
			desc = DescTemplate
		}
		log.WithError(err).Error("run aborted")
		return models.RunResult{
			RunID:             runID,
			StatusCode:        http.StatusInternalServerError,
			StatusDescription: fmt.Sprintf("%s: %v", desc, err),
			Data:              &data,
			Sources:           results,
		}
	}

	artifacts := []string{dataJob.OutputPath, summaryJob.OutputPath}
	if a.opts.Archiver != nil {
		path, rows, err := a.opts.Archiver.Write(runID, runDate, results)
		if err != nil {
			log.WithError(err).Warn("failed to archive settlements")
		}
		if path != "" {
			log.WithFields(logger.Fields{"path": path, "rows": rows}).Info("settlements archived")
			artifacts = append(artifacts, path)
		}
	}
	if a.opts.Publisher != nil {
		if _, err := a.opts.Publisher.Publish(ctx, runDate, artifacts...); err != nil {
			log.WithError(err).Warn("failed to publish artifacts")
		}
	}

	desc := DescOK
	var failed []string
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.Key)
		}
	}
	if len(failed) > 0 {
		desc = fmt.Sprintf("%s: %s", DescPartial, strings.Join(failed, ", "))
	}
	log.WithFields(logger.Fields{"failed": len(failed)}).Info("run finished")

	return models.RunResult{
		RunID:             runID,
		StatusCode:        http.StatusOK,
		StatusDescription: desc,
		Data:              &data,
		Sources:           results,
	}
}

// resolveAll fetches the sources one after the other in configured order.
func (a *Aggregator) resolveAll(ctx context.Context, date string) []models.SourceResult {
	results := make([]models.SourceResult, len(a.opts.Sources))
	for i, p := range a.opts.Sources {
		results[i] = a.resolve(ctx, date, p)
	}
	return results
}

func (a *Aggregator) resolve(ctx context.Context, date string, p models.SourceProfile) models.SourceResult {
	if p.TradingDaysOnly {
		trading, err := a.opts.Calendar.IsTradingDay(date)
		if err == nil && !trading {
			a.log.WithFields(logger.Fields{"source": p.Key, "date": date}).Info("not a trading day, source skipped")
			return models.SourceResult{
				Key:               p.Key,
				StatusCode:        http.StatusOK,
				StatusDescription: DescNotTradingDay,
				Data: models.LineData{
					LineInfo: []models.ConcreteLine{},
					LineTmp:  []models.PlaceholderLine{},
					Resume:   []models.RunSummary{reportline.ErrorSummary(p, a.opts.Now(), date, models.AmountSkipped)},
				},
			}
		}
	}
	return a.fetcher.Fetch(ctx, date, p)
}

func collect(results []models.SourceResult) models.LineData {
	data := models.LineData{
		LineInfo: []models.ConcreteLine{},
		LineTmp:  []models.PlaceholderLine{},
		Resume:   []models.RunSummary{},
	}
	for _, r := range results {
		data.LineInfo = append(data.LineInfo, r.Data.LineInfo...)
		data.LineTmp = append(data.LineTmp, r.Data.LineTmp...)
		data.Resume = append(data.Resume, r.Data.Resume...)
	}
	return data
}

func (a *Aggregator) jobs(runDate time.Time, results []models.SourceResult) (workbook.Job, workbook.Job) {
	dataJob := workbook.Job{
		Name:         "data",
		TemplatePath: a.opts.Report.DataTemplate,
		OutputPath:   a.outputPath(a.opts.Report.DataOutput, runDate),
	}
	summaryJob := workbook.Job{
		Name:         "summary",
		TemplatePath: a.opts.Report.SummaryTemplate,
		OutputPath:   a.outputPath(a.opts.Report.SummaryOutput, runDate),
	}

	profiles := make(map[string]models.SourceProfile, len(a.opts.Sources))
	for _, p := range a.opts.Sources {
		profiles[p.Key] = p
	}

	var summaries []models.Row
	for _, r := range results {
		for _, s := range r.Data.Resume {
			summaries = append(summaries, s)
		}
		if !r.HasLine() {
			continue
		}
		p := profiles[r.Key]
		concrete, placeholder := r.Data.LineInfo[0], r.Data.LineTmp[0]
		dataJob.Output = append(dataJob.Output, workbook.Payload{
			Sheet: p.SheetName(),
			Key:   p.Key,
			Rows:  []models.Row{concrete},
		})
		dataJob.CarryForward = append(dataJob.CarryForward, workbook.Payload{
			Sheet: p.SheetName(),
			Key:   p.Key,
			Rows:  []models.Row{concrete, placeholder},
		})
	}

	summaryJob.Output = []workbook.Payload{{Sheet: models.SummaryKey, Key: models.SummaryKey, Rows: summaries}}
	carry := make([]models.Row, 0, len(summaries)+1)
	carry = append(carry, summaries...)
	carry = append(carry, models.SummaryPlaceholder{})
	summaryJob.CarryForward = []workbook.Payload{{Sheet: models.SummaryKey, Key: models.SummaryKey, Rows: carry}}

	return dataJob, summaryJob
}

func (a *Aggregator) outputPath(path string, runDate time.Time) string {
	if !a.opts.Report.Timestamped {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + runDate.Format("20060102") + ext
}
