package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"settleflow/internal/fileutil"
)

// DataFile describes one archived parquet file.
type DataFile struct {
	Path        string            `json:"path"`
	FileSize    int64             `json:"file_size_in_bytes"`
	RecordCount int64             `json:"record_count"`
	Partition   map[string]string `json:"partition"`
	Timestamp   time.Time         `json:"-"`
}

// ManifestEntry mirrors the information kept in an Iceberg manifest file.
type ManifestEntry struct {
	Status   int      `json:"status"`
	DataFile DataFile `json:"data_file"`
}

// Snapshot is one committed archive file.
type Snapshot struct {
	SnapshotID  int64  `json:"snapshot-id"`
	TimestampMs int64  `json:"timestamp-ms"`
	Manifest    string `json:"manifest-list"`
}

// TableMetadata is the metadata.json of the archive table.
type TableMetadata struct {
	FormatVersion     int        `json:"format-version"`
	TableName         string     `json:"table-name"`
	TableUUID         string     `json:"table-uuid"`
	Location          string     `json:"location"`
	CurrentSnapshotID int64      `json:"current-snapshot-id"`
	Snapshots         []Snapshot `json:"snapshots"`
}

// Catalog keeps Iceberg style metadata next to the archive so the parquet
// files can be queried as one table. State is reloaded from disk on every
// commit, so several processes may share a directory as long as they do
// not commit at the same time.
type Catalog struct {
	mu    sync.Mutex
	dir   string
	table string
}

func NewCatalog(dir, table string) *Catalog {
	return &Catalog{dir: dir, table: table}
}

func (c *Catalog) metadataPath() string {
	return filepath.Join(c.dir, "metadata", "metadata.json")
}

// Load returns the current table metadata. A missing file yields an empty
// table with a fresh UUID.
func (c *Catalog) Load() (TableMetadata, error) {
	data, err := os.ReadFile(c.metadataPath())
	if errors.Is(err, fs.ErrNotExist) {
		return TableMetadata{FormatVersion: 2, TableName: c.table, TableUUID: uuid.NewString(), Location: c.dir}, nil
	}
	if err != nil {
		return TableMetadata{}, err
	}
	var tm TableMetadata
	if err := json.Unmarshal(data, &tm); err != nil {
		return TableMetadata{}, fmt.Errorf("decode %s: %w", c.metadataPath(), err)
	}
	return tm, nil
}

// Commit writes a manifest for df and appends a snapshot pointing at it.
func (c *Catalog) Commit(df DataFile) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm, err := c.Load()
	if err != nil {
		return Snapshot{}, err
	}

	snapID := df.Timestamp.UnixNano()
	if n := len(tm.Snapshots); n > 0 && snapID <= tm.Snapshots[n-1].SnapshotID {
		snapID = tm.Snapshots[n-1].SnapshotID + 1
	}
	manifestFile := fmt.Sprintf("manifest-%d.json", snapID)
	b, err := json.Marshal([]ManifestEntry{{Status: 1, DataFile: df}})
	if err != nil {
		return Snapshot{}, err
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(c.dir, "metadata", manifestFile), b, 0o644); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{SnapshotID: snapID, TimestampMs: df.Timestamp.UnixMilli(), Manifest: manifestFile}
	tm.Snapshots = append(tm.Snapshots, snap)
	tm.CurrentSnapshotID = snapID

	b, err = json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return Snapshot{}, err
	}
	if err := fileutil.WriteFileAtomic(c.metadataPath(), b, 0o644); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
