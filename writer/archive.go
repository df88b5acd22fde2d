package writer

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"settleflow/internal/fileutil"
	"settleflow/logger"
	"settleflow/models"
)

type archiveMemFile struct {
	buffer *bytes.Buffer
}

func newArchiveMemFile() *archiveMemFile {
	return &archiveMemFile{buffer: &bytes.Buffer{}}
}

func (m *archiveMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *archiveMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *archiveMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *archiveMemFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *archiveMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *archiveMemFile) Close() error                              { return nil }
func (m *archiveMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// settlementRecord is one normalised settlement row of a run. Settle and
// volume are kept both as doubles and as exact decimal text.
type settlementRecord struct {
	RunID           string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RunDate         string  `parquet:"name=run_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source          string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Origin          string  `parquet:"name=origin, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradeDate       string  `parquet:"name=trade_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Position        int32   `parquet:"name=position, type=INT32"`
	Month           string  `parquet:"name=month, type=BYTE_ARRAY, convertedtype=UTF8"`
	SettlementMonth string  `parquet:"name=settlement_month, type=BYTE_ARRAY, convertedtype=UTF8"`
	Settle          float64 `parquet:"name=settle, type=DOUBLE"`
	SettleText      string  `parquet:"name=settle_text, type=BYTE_ARRAY, convertedtype=UTF8"`
	Volume          float64 `parquet:"name=volume, type=DOUBLE"`
	VolumeText      string  `parquet:"name=volume_text, type=BYTE_ARRAY, convertedtype=UTF8"`
	Total           bool    `parquet:"name=total, type=BOOLEAN"`
	ArchivedAt      int64   `parquet:"name=archived_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Archiver writes the settlements of a run to a parquet file and commits it
// to the archive catalog.
type Archiver struct {
	dir         string
	compression parquet.CompressionCodec
	catalog     *Catalog
	log         *logger.Entry
	now         func() time.Time
}

// NewArchiver returns an archiver writing into dir. compression is one of
// snappy (default), gzip, zstd or none.
func NewArchiver(dir, compression string) (*Archiver, error) {
	codec, err := compressionCodec(compression)
	if err != nil {
		return nil, err
	}
	return &Archiver{
		dir:         dir,
		compression: codec,
		catalog:     NewCatalog(dir, "settlements"),
		log:         logger.GetLogger().WithComponent("archive"),
		now:         time.Now,
	}, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return parquet.CompressionCodec_SNAPPY, nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, nil
	case "zstd":
		return parquet.CompressionCodec_ZSTD, nil
	case "none", "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported archive compression %q", name)
	}
}

// Write archives every settlement carried by results and returns the file
// path and row count. Nothing is written when there are no rows.
func (a *Archiver) Write(runID string, runDate time.Time, results []models.SourceResult) (string, int, error) {
	records := a.records(runID, runDate, results)
	if len(records) == 0 {
		return "", 0, nil
	}

	data, err := a.createParquet(records)
	if err != nil {
		return "", 0, fmt.Errorf("create parquet: %w", err)
	}

	name := fmt.Sprintf("settlements_%s_%s.parquet", runDate.Format("20060102"), shortID(runID))
	path := filepath.Join(a.dir, name)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", 0, err
	}

	if _, err := a.catalog.Commit(DataFile{
		Path:        path,
		FileSize:    int64(len(data)),
		RecordCount: int64(len(records)),
		Partition:   map[string]string{"run_date": runDate.Format("2006-01-02")},
		Timestamp:   a.now().UTC(),
	}); err != nil {
		return path, len(records), fmt.Errorf("commit archive catalog: %w", err)
	}

	logger.LogDataFlowEntry(a.log, "aggregator", path, len(records), "settlements")
	return path, len(records), nil
}

func (a *Archiver) records(runID string, runDate time.Time, results []models.SourceResult) []settlementRecord {
	archivedAt := a.now().UTC().UnixMilli()
	var out []settlementRecord
	for _, res := range results {
		var origin, tradeDate string
		if len(res.Data.Resume) > 0 {
			origin = res.Data.Resume[0].Origin
			tradeDate = res.Data.Resume[0].TradeDate
		}
		for i, s := range res.Settlements {
			out = append(out, settlementRecord{
				RunID:           runID,
				RunDate:         runDate.Format("2006-01-02"),
				Source:          res.Key,
				Origin:          origin,
				TradeDate:       tradeDate,
				Position:        int32(i + 1),
				Month:           s.Month,
				SettlementMonth: s.SettlementMonth,
				Settle:          s.Settle.InexactFloat64(),
				SettleText:      s.Settle.String(),
				Volume:          s.Volume.InexactFloat64(),
				VolumeText:      s.Volume.String(),
				Total:           s.Total,
				ArchivedAt:      archivedAt,
			})
		}
	}
	return out
}

func (a *Archiver) createParquet(records []settlementRecord) ([]byte, error) {
	mf := newArchiveMemFile()
	pw, err := writer.NewParquetWriter(mf, new(settlementRecord), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = a.compression

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mf.Bytes(), nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "run"
	}
	return id
}
