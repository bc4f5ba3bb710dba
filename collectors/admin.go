/*
 * This file is part of Kumo.
 *
 * Kumo is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Kumo is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Kumo.  If not, see <http://www.gnu.org/licenses/>.
 */

package collectors

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type AdminCollector struct {
	deadlockCountMetric *prometheus.Desc
	sqlErrorCountMetric *prometheus.Desc

	reloadTimeSummary *prometheus.HistogramVec
	flushTimeSummary  *prometheus.HistogramVec
}

var (
	// Data
	reloadTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kumo_reload_seconds",
		Help:    "Histogram of the time taken to reload data from database",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"type"})
	flushTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kumo_flush_seconds",
		Help:    "Histogram of the time taken to flush data from channels to database",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"type"})

	deadlockCount atomic.Uint64
	sqlErrorCount atomic.Uint64
)

func NewAdminCollector() *AdminCollector {
	return &AdminCollector{
		deadlockCountMetric: prometheus.NewDesc("kumo_deadlock_count", "Number of times deadlock was encountered during flush", nil, nil),
		sqlErrorCountMetric: prometheus.NewDesc("kumo_sql_errors_count", "Number of SQL errors encountered", nil, nil),

		reloadTimeSummary: reloadTime,
		flushTimeSummary:  flushTime,
	}
}

func (collector *AdminCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.deadlockCountMetric
	ch <- collector.sqlErrorCountMetric

	reloadTime.Describe(ch)
	flushTime.Describe(ch)
}

func (collector *AdminCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(collector.deadlockCountMetric, prometheus.CounterValue, float64(deadlockCount.Load()))
	ch <- prometheus.MustNewConstMetric(collector.sqlErrorCountMetric, prometheus.CounterValue, float64(sqlErrorCount.Load()))

	reloadTime.Collect(ch)
	flushTime.Collect(ch)
}

func IncrementDeadlockCount() {
	deadlockCount.Add(1)
}

func IncrementSQLErrorCount() {
	sqlErrorCount.Add(1)
}

func UpdateReloadTime(source string, duration time.Duration) {
	reloadTime.WithLabelValues(source).Observe(duration.Seconds())
}

func UpdateFlushTime(flushType string, duration time.Duration) {
	flushTime.WithLabelValues(flushType).Observe(duration.Seconds())
}
