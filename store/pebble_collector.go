package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// PebbleCollector exports compaction, memtable and WAL statistics of a
// Pebble database.
type PebbleCollector struct {
	db *pebble.DB

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc
	compactionInProgress    *prometheus.Desc

	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc

	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

func NewPebbleCollector(db *pebble.DB) *PebbleCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("grocery_pebble_"+name, help, nil, nil)
	}
	return &PebbleCollector{
		db: db,

		compactionCount:         desc("compaction_count_total", "Total number of compactions performed"),
		compactionEstimatedDebt: desc("compaction_estimated_debt_bytes", "Estimated number of bytes that need to be compacted to reach a stable state"),
		compactionInProgress:    desc("compaction_in_progress_bytes", "Number of bytes being compacted currently"),

		memtableSize:  desc("memtable_size_bytes", "Current size of the memtable in bytes"),
		memtableCount: desc("memtable_count", "Current count of memtables"),

		walFiles:        desc("wal_files", "Number of live WAL files"),
		walSize:         desc("wal_size_bytes", "Size of live WAL data in bytes"),
		walBytesWritten: desc("wal_bytes_written_total", "Total physical bytes written to the WAL"),
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionEstimatedDebt
	ch <- pc.compactionInProgress
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.walBytesWritten
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	m := pc.db.Metrics()
	send := func(d *prometheus.Desc, t prometheus.ValueType, v float64) {
		ch <- prometheus.MustNewConstMetric(d, t, v)
	}

	send(pc.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	send(pc.compactionEstimatedDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	send(pc.compactionInProgress, prometheus.GaugeValue, float64(m.Compact.InProgressBytes))

	send(pc.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	send(pc.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))

	send(pc.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	send(pc.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	send(pc.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
}
