// Package workbook fills spreadsheet templates with report rows and rewrites
// the template itself so the next run finds fresh placeholders.
package workbook

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"settleflow/internal/fileutil"
	"settleflow/logger"
	"settleflow/models"
)

// Payload is the rows written into one worksheet.
type Payload struct {
	Sheet string
	Key   string
	Rows  []models.Row
}

// Job renders one template: Output is written to OutputPath and
// CarryForward is written back over TemplatePath.
type Job struct {
	Name         string
	TemplatePath string
	OutputPath   string
	Output       []Payload
	CarryForward []Payload
}

// Options configures an Engine.
type Options struct {
	// BackupTemplates keeps the previous template as <template>.bak.
	BackupTemplates bool
}

// Engine renders jobs. It holds no state between calls.
type Engine struct {
	opts Options
	log  *logger.Entry
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts, log: logger.GetLogger().WithComponent("workbook")}
}

type rendered struct {
	job      Job
	output   []byte
	template []byte
}

// Render fills every job in memory first and only then touches the disk, so
// a TemplateError leaves all outputs and templates as they were.
func (e *Engine) Render(jobs ...Job) error {
	start := time.Now()
	results := make([]rendered, 0, len(jobs))
	for _, job := range jobs {
		r, err := e.render(job)
		if err != nil {
			return err
		}
		results = append(results, r)
	}

	for _, r := range results {
		if err := fileutil.WriteFileAtomic(r.job.OutputPath, r.output, 0o644); err != nil {
			return fmt.Errorf("failed to write %s output: %w", r.job.Name, err)
		}
		if e.opts.BackupTemplates {
			if err := fileutil.CopyFile(r.job.TemplatePath, r.job.TemplatePath+".bak"); err != nil {
				return fmt.Errorf("failed to back up %s template: %w", r.job.Name, err)
			}
		}
		if err := fileutil.WriteFileAtomic(r.job.TemplatePath, r.template, 0o644); err != nil {
			return fmt.Errorf("failed to rewrite %s template: %w", r.job.Name, err)
		}
		e.log.WithFields(logger.Fields{
			"job":      r.job.Name,
			"output":   r.job.OutputPath,
			"template": r.job.TemplatePath,
		}).Info("workbook written")
	}

	logger.LogPerformanceEntry(e.log, "workbook", "render", time.Since(start), logger.Fields{"jobs": len(jobs)})
	return nil
}

func (e *Engine) render(job Job) (rendered, error) {
	data, err := os.ReadFile(job.TemplatePath)
	if err != nil {
		return rendered{}, &TemplateError{Path: job.TemplatePath, Err: err}
	}

	output, err := e.fill(job, data, job.Output, false)
	if err != nil {
		return rendered{}, err
	}
	template, err := e.fill(job, data, job.CarryForward, true)
	if err != nil {
		return rendered{}, err
	}
	return rendered{job: job, output: output, template: template}, nil
}

// fill opens a private copy of the template bytes, writes payloads into it
// and returns the serialised workbook.
func (e *Engine) fill(job Job, data []byte, payloads []Payload, carryForward bool) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &TemplateError{Path: job.TemplatePath, Err: err}
	}
	defer f.Close()

	for _, p := range payloads {
		idx, err := f.GetSheetIndex(p.Sheet)
		if err != nil || idx < 0 {
			e.log.WithFields(logger.Fields{"job": job.Name, "sheet": p.Sheet}).Warn("sheet not found in template, skipping")
			continue
		}
		if err := fillSheet(f, p, carryForward); err != nil {
			return nil, &TemplateError{Path: job.TemplatePath, Err: fmt.Errorf("sheet %s: %w", p.Sheet, err)}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, &TemplateError{Path: job.TemplatePath, Err: err}
	}
	return buf.Bytes(), nil
}
