package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the aggregate as Prometheus metrics. It reads the
// live counters at scrape time instead of double-counting through
// instrumented code paths.
type Collector struct {
	stats *Stats
	desc  map[string]*prometheus.Desc
}

// NewCollector builds a collector over the given aggregate. Register it
// with a prometheus.Registerer to expose it.
func NewCollector(s *Stats) *Collector {
	return &Collector{
		stats: s,
		desc: map[string]*prometheus.Desc{
			"connections_current": prometheus.NewDesc("smscd_connections_current", "Open ESME connections", nil, nil),
			"connections_total":   prometheus.NewDesc("smscd_connections_total", "Accepted ESME connections", nil, nil),
			"binds_current":       prometheus.NewDesc("smscd_binds_current", "Currently bound sessions", nil, nil),
			"binds_total":         prometheus.NewDesc("smscd_binds_total", "Successful binds", nil, nil),
			"binds_failed_total":  prometheus.NewDesc("smscd_binds_failed_total", "Failed bind attempts", nil, nil),
			"messages_received":   prometheus.NewDesc("smscd_messages_received_total", "Messages accepted from clients", nil, nil),
			"messages_sent":       prometheus.NewDesc("smscd_messages_sent_total", "Messages delivered to clients", nil, nil),
			"user_binds_current":  prometheus.NewDesc("smscd_user_binds_current", "Currently bound sessions per user", []string{"user"}, nil),
			"user_binds_total":    prometheus.NewDesc("smscd_user_binds_total", "Successful binds per user", []string{"user"}, nil),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.desc {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.desc["connections_current"], prometheus.GaugeValue, float64(snap.CurrentConnections))
	ch <- prometheus.MustNewConstMetric(c.desc["connections_total"], prometheus.CounterValue, float64(snap.TotalConnections))
	ch <- prometheus.MustNewConstMetric(c.desc["binds_current"], prometheus.GaugeValue, float64(snap.CurrentBinds))
	ch <- prometheus.MustNewConstMetric(c.desc["binds_total"], prometheus.CounterValue, float64(snap.TotalBinds))
	ch <- prometheus.MustNewConstMetric(c.desc["binds_failed_total"], prometheus.CounterValue, float64(snap.FailedBinds))
	ch <- prometheus.MustNewConstMetric(c.desc["messages_received"], prometheus.CounterValue, float64(snap.MessagesReceived))
	ch <- prometheus.MustNewConstMetric(c.desc["messages_sent"], prometheus.CounterValue, float64(snap.MessagesSent))

	for name, u := range snap.Users {
		ch <- prometheus.MustNewConstMetric(c.desc["user_binds_current"], prometheus.GaugeValue, float64(u.CurrentBinds), name)
		ch <- prometheus.MustNewConstMetric(c.desc["user_binds_total"], prometheus.CounterValue, float64(u.TotalBinds), name)
	}
}
