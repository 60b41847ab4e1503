package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/tinykv/internal/storage/memory"
)

// StoreStats abstracts the store counters the collector reads.
type StoreStats interface {
	Stats() memory.Stats
}

// ServerStats abstracts the connection counters the collector reads. It is an
// interface so this package does not import the server package.
type ServerStats interface {
	ActiveConnections() int64
	TotalConnections() uint64
}

// Collector implements prometheus.Collector by pulling current values from
// the store and the server on each scrape rather than on the command path.
type Collector struct {
	store     StoreStats
	server    ServerStats
	startTime time.Time

	uptime       *prometheus.Desc
	connsTotal   *prometheus.Desc
	connsActive  *prometheus.Desc
	keys         *prometheus.Desc
	hits         *prometheus.Desc
	misses       *prometheus.Desc
	expiredReads *prometheus.Desc
	swept        *prometheus.Desc
}

// NewCollector creates a Collector. Either source may be nil.
func NewCollector(store StoreStats, server ServerStats, startTime time.Time) *Collector {
	return &Collector{
		store:     store,
		server:    server,
		startTime: startTime,

		uptime:       prometheus.NewDesc(namespace+"_uptime_seconds", "Seconds since server start.", nil, nil),
		connsTotal:   prometheus.NewDesc(namespace+"_connections_total", "Total connections accepted since startup.", nil, nil),
		connsActive:  prometheus.NewDesc(namespace+"_connections_active", "Currently connected clients.", nil, nil),
		keys:         prometheus.NewDesc(namespace+"_keys", "Entries physically held by the store, expired or not.", nil, nil),
		hits:         prometheus.NewDesc(namespace+"_keyspace_hits_total", "GETs that found a live entry.", nil, nil),
		misses:       prometheus.NewDesc(namespace+"_keyspace_misses_total", "GETs that found no live entry.", nil, nil),
		expiredReads: prometheus.NewDesc(namespace+"_expired_reads_total", "GETs that found an entry past its TTL.", nil, nil),
		swept:        prometheus.NewDesc(namespace+"_keys_swept_total", "Expired entries removed by the sweeper.", nil, nil),
	}
}

// Describe sends all descriptor definitions to the channel.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptime
	ch <- c.connsTotal
	ch <- c.connsActive
	ch <- c.keys
	ch <- c.hits
	ch <- c.misses
	ch <- c.expiredReads
	ch <- c.swept
}

// Collect sends the current values.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(c.startTime).Seconds())

	if c.server != nil {
		ch <- prometheus.MustNewConstMetric(c.connsTotal, prometheus.CounterValue, float64(c.server.TotalConnections()))
		ch <- prometheus.MustNewConstMetric(c.connsActive, prometheus.GaugeValue, float64(c.server.ActiveConnections()))
	}

	if c.store != nil {
		st := c.store.Stats()
		ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.Keys))
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits))
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses))
		ch <- prometheus.MustNewConstMetric(c.expiredReads, prometheus.CounterValue, float64(st.ExpiredReads))
		ch <- prometheus.MustNewConstMetric(c.swept, prometheus.CounterValue, float64(st.Swept))
	}
}
