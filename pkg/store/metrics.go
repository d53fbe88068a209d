package store

import (
	"io/fs"
	"path/filepath"
)

var dbPath string

// Stats is a compact view of store health exported via telemetry gauges.
type Stats struct {
	DiskBytes      uint64
	WALBytes       uint64
	L0Files        int
	CompactionDebt uint64
	MemtableBytes  uint64
}

// GetStats returns best-effort storage metrics. Disk usage is computed by
// walking the DB directory; the rest comes from pebble's own metrics.
func GetStats() Stats {
	var s Stats
	if db == nil {
		return s
	}
	if dbPath != "" {
		var total uint64
		_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if fi, err := d.Info(); err == nil {
				total += uint64(fi.Size())
			}
			return nil
		})
		s.DiskBytes = total
	}
	m := db.Metrics()
	if m == nil {
		return s
	}
	s.WALBytes = m.WAL.Size
	s.L0Files = int(m.Levels[0].NumFiles)
	s.CompactionDebt = m.Compact.EstimatedDebt
	s.MemtableBytes = m.MemTable.Size
	return s
}
