// Package fetcher resolves one source for one trade date: it walks back over
// empty days, builds the report line and records a diagnostic snapshot.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"settleflow/internal/cmegroup"
	"settleflow/internal/fileutil"
	"settleflow/internal/reportline"
	"settleflow/internal/settlement"
	"settleflow/internal/tradedate"
	"settleflow/logger"
	"settleflow/models"
)

// ProviderCMEGroup is the only provider with a client.
const ProviderCMEGroup = "cmegroup"

const defaultMaxLookbackDays = 30

// Status descriptions reported in SourceResult.
const (
	DescOK                = "OK"
	DescInvalidDate       = "Wrong date format, expected MM/DD/YYYY"
	DescNotImplemented    = "Source not implemented"
	DescTransport         = "Settlements source unavailable"
	DescParse             = "Malformed settlements response"
	DescNumbers           = "Some settlement values could not be parsed"
	DescLookbackExhausted = "No settlements found within the lookback window"
)

// SettlementsClient is the subset of the CME client the fetcher uses.
type SettlementsClient interface {
	Settlements(ctx context.Context, productID, tradeDate string) (*models.SettlementResponse, error)
}

// Options configures a Fetcher.
type Options struct {
	// MaxLookbackDays caps the number of requests per fetch, the first
	// one included.
	MaxLookbackDays int
	Fallback        settlement.Fallback
	// SnapshotDir receives one JSON file per source. Empty disables snapshots.
	SnapshotDir string
	Now         func() time.Time
}

// Fetcher is safe for concurrent use by several sources.
type Fetcher struct {
	client SettlementsClient
	opts   Options
	log    *logger.Entry
}

// New creates a Fetcher backed by client.
func New(client SettlementsClient, opts Options) *Fetcher {
	if opts.MaxLookbackDays <= 0 {
		opts.MaxLookbackDays = defaultMaxLookbackDays
	}
	if opts.Fallback == "" {
		opts.Fallback = settlement.FallbackDisplay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		log:    logger.GetLogger().WithComponent("fetcher"),
	}
}

// Fetch resolves profile for date (MM/DD/YYYY). It never returns an error:
// every failure is folded into the result with an ERROR summary.
func (f *Fetcher) Fetch(ctx context.Context, date string, profile models.SourceProfile) models.SourceResult {
	result := f.fetch(ctx, date, profile)
	f.writeSnapshot(profile, result)
	return result
}

func (f *Fetcher) fetch(ctx context.Context, date string, profile models.SourceProfile) models.SourceResult {
	runAt := f.opts.Now()
	log := f.log.WithFields(logger.Fields{"source": profile.Key, "date": date})
	if runID := logger.RunIDFromContext(ctx); runID != "" {
		log = log.WithFields(logger.Fields{"run_id": runID})
	}

	if _, err := tradedate.Parse(date); err != nil {
		log.WithError(err).Warn("rejected fetch date")
		return failure(profile, runAt, date, http.StatusBadRequest, DescInvalidDate, models.AmountError, 0)
	}

	if profile.Provider != ProviderCMEGroup {
		log.WithFields(logger.Fields{"provider": profile.Provider}).Info("source not implemented")
		return failure(profile, runAt, date, http.StatusNotImplemented, DescNotImplemented, models.AmountNotImplemented, 0)
	}

	current := date
	for attempt := 1; attempt <= f.opts.MaxLookbackDays; attempt++ {
		start := time.Now()
		resp, err := f.client.Settlements(ctx, profile.ID, current)
		logger.LogPerformanceEntry(log, "fetcher", "settlements_request", time.Since(start), logger.Fields{
			"attempt":    attempt,
			"trade_date": current,
		})

		if err != nil {
			status, desc := classify(err)
			log.WithError(err).WithFields(logger.Fields{"attempt": attempt, "trade_date": current}).Error("settlements request failed")
			return failure(profile, runAt, date, status, desc, models.AmountError, attempt)
		}

		// Only an explicit empty flag walks back; empty:false with no rows is a
		// valid day that yields a line without months.
		if resp.Empty {
			previous, err := tradedate.PreviousDay(current)
			if err != nil {
				return failure(profile, runAt, date, http.StatusInternalServerError, err.Error(), models.AmountError, attempt)
			}
			log.WithFields(logger.Fields{"trade_date": current, "next": previous}).Debug("no settlements, trying previous day")
			current = previous
			continue
		}

		tradeDate := resp.TradeDate
		if tradeDate == "" {
			tradeDate = current
		}

		line := reportline.Build(reportline.Input{
			Rows:      settlement.Order(resp.Settlements, f.opts.Fallback),
			Profile:   profile,
			RunAt:     runAt,
			TradeDate: tradeDate,
		})
		logger.LogDataFlowEntry(log, profile.Key, "reportline", len(line.Settlements), "settlements")

		res := models.SourceResult{
			Key:               profile.Key,
			StatusCode:        http.StatusOK,
			StatusDescription: DescOK,
			Attempts:          attempt,
			Data: models.LineData{
				LineInfo: []models.ConcreteLine{line.Concrete},
				LineTmp:  []models.PlaceholderLine{line.Placeholder},
				Resume:   []models.RunSummary{line.Summary},
			},
			Settlements: line.Settlements,
		}
		if len(line.ParseErrors) > 0 {
			log.WithError(errors.Join(line.ParseErrors...)).Warn("settlement values defaulted to zero")
			res.StatusCode = http.StatusInternalServerError
			res.StatusDescription = DescNumbers
		}
		return res
	}

	log.WithFields(logger.Fields{"max_lookback_days": f.opts.MaxLookbackDays}).Error("lookback exhausted")
	return failure(profile, runAt, date, http.StatusInternalServerError, DescLookbackExhausted, models.AmountError, f.opts.MaxLookbackDays)
}

func classify(err error) (int, string) {
	var te *cmegroup.TransportError
	if errors.As(err, &te) {
		return http.StatusServiceUnavailable, DescTransport
	}
	var pe *cmegroup.ParseError
	if errors.As(err, &pe) {
		return http.StatusInternalServerError, DescParse
	}
	return http.StatusInternalServerError, err.Error()
}

func failure(p models.SourceProfile, runAt time.Time, date string, status int, desc, sentinel string, attempts int) models.SourceResult {
	return models.SourceResult{
		Key:               p.Key,
		StatusCode:        status,
		StatusDescription: desc,
		Attempts:          attempts,
		Data: models.LineData{
			LineInfo: []models.ConcreteLine{},
			LineTmp:  []models.PlaceholderLine{},
			Resume:   []models.RunSummary{reportline.ErrorSummary(p, runAt, date, sentinel)},
		},
	}
}

func (f *Fetcher) writeSnapshot(p models.SourceProfile, res models.SourceResult) {
	if f.opts.SnapshotDir == "" {
		return
	}
	path := filepath.Join(f.opts.SnapshotDir, p.SnapshotFile())
	data, err := json.MarshalIndent(res.Data, "", "  ")
	if err == nil {
		err = fileutil.WriteFileAtomic(path, data, 0o644)
	}
	if err != nil {
		f.log.WithError(fmt.Errorf("snapshot %s: %w", path, err)).Warn("failed to write diagnostic snapshot")
	}
}
