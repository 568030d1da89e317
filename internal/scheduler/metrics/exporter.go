package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter serves the collector snapshot over HTTP and bridges it into the
// Prometheus registry via a custom collector so the scan path stays free of
// prometheus types.
type Exporter struct {
	collector *Collector

	scansDesc     *prometheus.Desc
	firedDesc     *prometheus.Desc
	misfiresDesc  *prometheus.Desc
	dupDesc       *prometheus.Desc
	failedDesc    *prometheus.Desc
	deferredDesc  *prometheus.Desc
	recoveredDesc *prometheus.Desc
	depthDesc     *prometheus.Desc
	activeDesc    *prometheus.Desc
	leaderDesc    *prometheus.Desc
	scanDurDesc   *prometheus.Desc
}

func NewExporter(collector *Collector) *Exporter {
	return &Exporter{
		collector:     collector,
		scansDesc:     prometheus.NewDesc("adsync_scheduler_scans_total", "Total fire engine scans", nil, nil),
		firedDesc:     prometheus.NewDesc("adsync_scheduler_fired_total", "Total occurrences dispatched", nil, nil),
		misfiresDesc:  prometheus.NewDesc("adsync_scheduler_misfires_total", "Total occurrences skipped beyond grace", nil, nil),
		dupDesc:       prometheus.NewDesc("adsync_scheduler_dup_claims_total", "Total occurrences claimed by another instance", nil, nil),
		failedDesc:    prometheus.NewDesc("adsync_scheduler_failed_total", "Total rows that failed during a scan", nil, nil),
		deferredDesc:  prometheus.NewDesc("adsync_scheduler_deferred_total", "Total fires deferred by rate limiting", nil, nil),
		recoveredDesc: prometheus.NewDesc("adsync_scheduler_recovered_total", "Total stale schedules recovered", nil, nil),
		depthDesc:     prometheus.NewDesc("adsync_scheduler_queue_depth", "Observed broker queue depth", nil, nil),
		activeDesc:    prometheus.NewDesc("adsync_scheduler_active_schedules", "Enabled schedules known to the store", nil, nil),
		leaderDesc:    prometheus.NewDesc("adsync_scheduler_is_leader", "1 when this instance holds leadership", nil, nil),
		scanDurDesc:   prometheus.NewDesc("adsync_scheduler_last_scan_duration_ms", "Duration of the last scan in milliseconds", nil, nil),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.scansDesc
	ch <- e.firedDesc
	ch <- e.misfiresDesc
	ch <- e.dupDesc
	ch <- e.failedDesc
	ch <- e.deferredDesc
	ch <- e.recoveredDesc
	ch <- e.depthDesc
	ch <- e.activeDesc
	ch <- e.leaderDesc
	ch <- e.scanDurDesc
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot()

	ch <- prometheus.MustNewConstMetric(e.scansDesc, prometheus.CounterValue, float64(snap.ScansTotal))
	ch <- prometheus.MustNewConstMetric(e.firedDesc, prometheus.CounterValue, float64(snap.FiredTotal))
	ch <- prometheus.MustNewConstMetric(e.misfiresDesc, prometheus.CounterValue, float64(snap.MisfiresTotal))
	ch <- prometheus.MustNewConstMetric(e.dupDesc, prometheus.CounterValue, float64(snap.DupClaimsTotal))
	ch <- prometheus.MustNewConstMetric(e.failedDesc, prometheus.CounterValue, float64(snap.FailedTotal))
	ch <- prometheus.MustNewConstMetric(e.deferredDesc, prometheus.CounterValue, float64(snap.DeferredTotal))
	ch <- prometheus.MustNewConstMetric(e.recoveredDesc, prometheus.CounterValue, float64(snap.RecoveredTotal))
	ch <- prometheus.MustNewConstMetric(e.depthDesc, prometheus.GaugeValue, float64(snap.QueueDepth))
	ch <- prometheus.MustNewConstMetric(e.activeDesc, prometheus.GaugeValue, float64(snap.ActiveSchedules))

	leader := 0.0
	if snap.IsLeader {
		leader = 1.0
	}
	ch <- prometheus.MustNewConstMetric(e.leaderDesc, prometheus.GaugeValue, leader)
	ch <- prometheus.MustNewConstMetric(e.scanDurDesc, prometheus.GaugeValue, float64(snap.LastScanDuration))
}

func (e *Exporter) Register(registry *prometheus.Registry) error {
	return registry.Register(e)
}

func (e *Exporter) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(e.collector.Snapshot())
	}
}

func (e *Exporter) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := e.collector.Snapshot()

		status := "healthy"
		if !snap.IsLeader {
			status = "standby"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"is_leader": snap.IsLeader,
			"uptime_s":  int64(snap.Uptime.Seconds()),
		})
	}
}
