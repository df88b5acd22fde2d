// Package reportline turns the ordered settlements of one source into the
// concrete line, the placeholder line and the run summary of a run.
package reportline

import (
	"time"

	"github.com/shopspring/decimal"

	"settleflow/internal/settlement"
	"settleflow/internal/tradedate"
	"settleflow/models"
)

// Input is everything Build needs. Rows must already be ordered.
type Input struct {
	Rows    []models.RawSettlement
	Profile models.SourceProfile
	// RunAt is when the run executes. Its day becomes the line date and the
	// full timestamp stamps the summary.
	RunAt time.Time
	// TradeDate is the trade date reported by the source.
	TradeDate string
}

// Line is the output of Build.
type Line struct {
	Concrete    models.ConcreteLine
	Placeholder models.PlaceholderLine
	Summary     models.RunSummary
	// Settlements holds every row with its numbers normalised, TOTAL included.
	Settlements []models.Settlement
	// ParseErrors lists the line fields that fell back to zero.
	ParseErrors []error
}

// Build numbers the non-TOTAL rows month1..monthN in order and takes the
// line volume from the first TOTAL row, or models.DefaultVolume without one.
func Build(in Input) Line {
	var (
		months    []decimal.Decimal
		volume    = models.DefaultVolume
		haveTotal bool
		out       Line
	)

	out.Settlements = make([]models.Settlement, 0, len(in.Rows))
	for _, row := range in.Rows {
		total := row.IsTotal()

		settle, settleErr := settlement.ParseSettle(row.Settle, in.Profile)
		vol, volErr := settlement.ParseVolume(row.Volume, in.Profile)

		switch {
		case total && !haveTotal:
			haveTotal = true
			volume = vol
			if volErr != nil {
				out.ParseErrors = append(out.ParseErrors, volErr)
			}
		case !total:
			months = append(months, settle)
			if settleErr != nil {
				out.ParseErrors = append(out.ParseErrors, settleErr)
			}
		}

		out.Settlements = append(out.Settlements, models.Settlement{
			Month:           row.Month,
			SettlementMonth: row.SettlementMonth,
			Settle:          settle,
			Volume:          vol,
			Total:           total,
		})
	}

	out.Concrete = models.ConcreteLine{
		Date:   tradedate.FormatLine(in.RunAt),
		Volume: volume,
		Months: months,
	}
	out.Placeholder = models.PlaceholderLine{
		Key:    in.Profile.Key,
		Months: len(months),
	}
	out.Summary = models.RunSummary{
		Date:      in.RunAt.Format(models.SummaryTimeLayout),
		TradeDate: in.TradeDate,
		Origin:    in.Profile.Origin,
		Amount:    models.CountAmount(len(months)),
	}
	return out
}

// ErrorSummary is the summary recorded for a source that produced no line.
func ErrorSummary(p models.SourceProfile, runAt time.Time, tradeDate, sentinel string) models.RunSummary {
	return models.RunSummary{
		Date:      runAt.Format(models.SummaryTimeLayout),
		TradeDate: tradeDate,
		Origin:    p.Origin,
		Amount:    models.SentinelAmount(sentinel),
	}
}
