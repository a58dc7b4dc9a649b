package sqlpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pool and query counters of a DB to Prometheus. Values are
// read from the DB at scrape time.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(sqlpool.NewCollector(db, "orders"))
type Collector struct {
	db *DB

	capacity     *prometheus.Desc
	idle         *prometheus.Desc
	borrowed     *prometheus.Desc
	constructing *prometheus.Desc
	acquires     *prometheus.Desc
	emptyAcq     *prometheus.Desc
	timeouts     *prometheus.Desc
	queries      *prometheus.Desc
	queryErrors  *prometheus.Desc
}

// NewCollector returns a collector for db. The pool label distinguishes
// several DBs registered on the same registry.
func NewCollector(db *DB, pool string) *Collector {
	labels := prometheus.Labels{"pool": pool}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("sqlpool", "", name), help, variable, labels)
	}
	return &Collector{
		db:           db,
		capacity:     desc("capacity", "Maximum number of connections."),
		idle:         desc("idle_connections", "Connections waiting to be borrowed."),
		borrowed:     desc("borrowed_connections", "Connections currently borrowed."),
		constructing: desc("constructing_connections", "Connections being established."),
		acquires:     desc("acquire_total", "Successful acquisitions."),
		emptyAcq:     desc("empty_acquire_total", "Acquisitions that found no idle connection."),
		timeouts:     desc("acquire_timeout_total", "Acquisitions that failed for lack of a connection."),
		queries:      desc("queries_total", "Queries run."),
		queryErrors:  desc("query_errors_total", "Failed queries by error kind.", "kind"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.idle
	ch <- c.borrowed
	ch <- c.constructing
	ch <- c.acquires
	ch <- c.emptyAcq
	ch <- c.timeouts
	ch <- c.queries
	ch <- c.queryErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.db.Stat()
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.borrowed, prometheus.GaugeValue, float64(s.Borrowed))
	ch <- prometheus.MustNewConstMetric(c.constructing, prometheus.GaugeValue, float64(s.Constructing))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcq, prometheus.CounterValue, float64(s.EmptyAcquireCount))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.TimeoutCount))

	stats := c.db.stats
	ch <- prometheus.MustNewConstMetric(c.queries, prometheus.CounterValue, float64(stats.queries.Load()))
	for k := KindConnect; k <= KindMisuse; k++ {
		ch <- prometheus.MustNewConstMetric(c.queryErrors, prometheus.CounterValue, float64(stats.errors[k].Load()), k.String())
	}
}
