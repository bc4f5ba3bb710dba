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
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
)

func (s *Server) alive(ctx *fasthttp.RequestCtx, buf *bytes.Buffer) int {
	ctx.SetContentType("application/json")

	type response struct {
		Status string `json:"status"`
		Now    int64  `json:"now"`
		Uptime int64  `json:"uptime"`
	}

	res, err := json.Marshal(response{
		Status: "ok",
		Now:    time.Now().UnixMilli(),
		Uptime: time.Since(s.startTime).Milliseconds(),
	})
	if err != nil {
		panic(err)
	}

	buf.Write(res)

	return fasthttp.StatusOK
}

func (s *Server) statsJSON(ctx *fasthttp.RequestCtx, buf *bytes.Buffer) int {
	ctx.SetContentType("application/json")

	type response struct {
		Uptime           int64  `json:"uptime"`
		Requests         uint64 `json:"requests"`
		Users            int    `json:"users"`
		WhitelistEntries int    `json:"whitelist_entries"`
		Bans             int    `json:"bans"`
		Torrents         int    `json:"torrents"`
		Swarms           int    `json:"swarms"`
		Peers            int    `json:"peers"`
		ReachabilitySize int    `json:"reachability_cache"`
	}

	res, err := json.Marshal(response{
		Uptime:           time.Since(s.startTime).Milliseconds(),
		Requests:         s.requests.Load(),
		Users:            s.gate.UserCount(),
		WhitelistEntries: s.gate.WhitelistCount(),
		Bans:             s.gate.BanCount(),
		Torrents:         s.registry.TorrentCount(),
		Swarms:           s.registry.WorkerCount(),
		Peers:            s.countPeers(),
		ReachabilitySize: s.verifier.CacheSize(),
	})
	if err != nil {
		panic(err)
	}

	buf.Write(res)

	return fasthttp.StatusOK
}

func (s *Server) countPeers() int {
	total := 0

	for _, hash := range s.registry.Hashes() {
		if count, err := s.store.CountPeers(hash); err == nil {
			total += count
		}
	}

	return total
}
