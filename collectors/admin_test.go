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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAdminCollectorTimings(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewAdminCollector())

	UpdateReloadTime("users", 25*time.Millisecond)
	UpdateFlushTime("torrents", 50*time.Millisecond)

	mfs, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var sawReload, sawFlush bool

	for _, mf := range mfs {
		switch mf.GetName() {
		case "kumo_reload_seconds":
			sawReload = true

			if len(mf.GetMetric()) == 0 || mf.GetMetric()[0].GetHistogram().GetSampleCount() < 1 {
				t.Fatal("Expected at least one reload observation")
			}
		case "kumo_flush_seconds":
			sawFlush = true

			if len(mf.GetMetric()) == 0 || mf.GetMetric()[0].GetHistogram().GetSampleCount() < 1 {
				t.Fatal("Expected at least one flush observation")
			}
		}
	}

	if !sawReload || !sawFlush {
		t.Fatalf("Expected both timing families, got reload=%v flush=%v", sawReload, sawFlush)
	}
}
