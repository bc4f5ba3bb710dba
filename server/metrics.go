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

package server

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"

	"kumo/collectors"
	"kumo/config"
)

var bearerPrefix = "Bearer "

// metrics serves the public gauge set; the admin gauges are appended
// only for callers presenting the admin bearer token.
func (s *Server) metrics(auth string, buf *bytes.Buffer) int {
	collectors.UpdateUptime(time.Since(s.startTime).Seconds())
	collectors.UpdateUsers(s.gate.UserCount())
	collectors.UpdateWhitelist(s.gate.WhitelistCount())
	collectors.UpdateBans(s.gate.BanCount())
	collectors.UpdateSwarms(s.registry.WorkerCount())
	collectors.UpdatePeers(s.countPeers())
	collectors.UpdateRequests(s.requests.Load())

	mfs, _ := s.normalRegisterer.(prometheus.Gatherer).Gather()
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(buf, mf); err != nil {
			panic(err)
		}
	}

	n := len(bearerPrefix)
	if len(auth) > n && auth[:n] == bearerPrefix {
		adminToken, exists := config.Section("http").Get("admin_token", "")
		if exists && auth[n:] == adminToken {
			mfs, _ = prometheus.DefaultGatherer.Gather()

			for _, mf := range mfs {
				if _, err := expfmt.MetricFamilyToText(buf, mf); err != nil {
					panic(err)
				}
			}
		}
	}

	return fasthttp.StatusOK
}
