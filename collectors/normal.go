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
	"github.com/prometheus/client_golang/prometheus"
)

type NormalCollector struct {
	uptimeMetric         *prometheus.Desc
	usersMetric          *prometheus.Desc
	swarmsMetric         *prometheus.Desc
	whitelistMetric      *prometheus.Desc
	bansMetric           *prometheus.Desc
	peersMetric          *prometheus.Desc
	requestsMetric       *prometheus.Desc
	udpConnectionsMetric *prometheus.Desc
}

var ( // Data
	users          int
	swarms         int
	whitelist      int
	bans           int
	peers          int
	uptime         float64
	requests       uint64
	udpConnections int
)

func NewNormalCollector() *NormalCollector {
	return &NormalCollector{
		uptimeMetric:         prometheus.NewDesc("kumo_uptime", "System uptime in seconds", nil, nil),
		usersMetric:          prometheus.NewDesc("kumo_users", "Number of active users in database", nil, nil),
		swarmsMetric:         prometheus.NewDesc("kumo_swarms", "Number of swarms with live workers", nil, nil),
		whitelistMetric:      prometheus.NewDesc("kumo_whitelist", "Number of client whitelist entries", nil, nil),
		bansMetric:           prometheus.NewDesc("kumo_bans", "Number of ban records loaded", nil, nil),
		peersMetric:          prometheus.NewDesc("kumo_peers", "Number of peers currently being tracked", nil, nil),
		requestsMetric:       prometheus.NewDesc("kumo_requests", "Number of successful requests handled", nil, nil),
		udpConnectionsMetric: prometheus.NewDesc("kumo_udp_connections", "Number of live UDP connection ids", nil, nil),
	}
}

func (collector *NormalCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.uptimeMetric
	ch <- collector.usersMetric
	ch <- collector.swarmsMetric
	ch <- collector.whitelistMetric
	ch <- collector.bansMetric
	ch <- collector.peersMetric
	ch <- collector.requestsMetric
	ch <- collector.udpConnectionsMetric
}

func (collector *NormalCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(collector.uptimeMetric, prometheus.CounterValue, uptime)
	ch <- prometheus.MustNewConstMetric(collector.usersMetric, prometheus.GaugeValue, float64(users))
	ch <- prometheus.MustNewConstMetric(collector.swarmsMetric, prometheus.GaugeValue, float64(swarms))
	ch <- prometheus.MustNewConstMetric(collector.whitelistMetric, prometheus.GaugeValue, float64(whitelist))
	ch <- prometheus.MustNewConstMetric(collector.bansMetric, prometheus.GaugeValue, float64(bans))
	ch <- prometheus.MustNewConstMetric(collector.peersMetric, prometheus.GaugeValue, float64(peers))
	ch <- prometheus.MustNewConstMetric(collector.requestsMetric, prometheus.CounterValue, float64(requests))
	ch <- prometheus.MustNewConstMetric(collector.udpConnectionsMetric, prometheus.GaugeValue, float64(udpConnections))
}

func UpdateUptime(tempUptime float64) {
	uptime = tempUptime
}

func UpdateUsers(tempUsers int) {
	users = tempUsers
}

func UpdatePeers(tempPeers int) {
	peers = tempPeers
}

func UpdateSwarms(tempSwarms int) {
	swarms = tempSwarms
}

func UpdateWhitelist(tempWhitelist int) {
	whitelist = tempWhitelist
}

func UpdateBans(tempBans int) {
	bans = tempBans
}

func UpdateRequests(tempRequests uint64) {
	requests = tempRequests
}

func UpdateUDPConnections(tempConnections int) {
	udpConnections = tempConnections
}
