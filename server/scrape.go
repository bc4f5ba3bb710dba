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

	"github.com/valyala/fasthttp"
	"github.com/zeebo/bencode"

	"kumo/ratelimit"
	"kumo/server/params"
)

// scrape reads counts straight off the cached torrent rows; no worker
// is spawned for swarms nobody is announcing to.
func (s *Server) scrape(ctx *fasthttp.RequestCtx, passkey string, buf *bytes.Buffer) int {
	addr := remoteAddr(ctx)
	now := time.Now().Unix()

	if reason, banned := s.gate.CheckBanned(addr, now); banned {
		failure("IP banned: "+reason, buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if allowed, _ := s.limiter.Allow(addr, ratelimit.ClassScrape); !allowed {
		failure("Rate limit exceeded", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if _, exists := s.gate.User(passkey); !exists {
		failure("Invalid passkey", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	qp := params.ParseQuery(string(ctx.URI().QueryString()))

	if len(qp.InfoHashes()) == 0 {
		failure("No info_hash provided", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	files := make(map[string]interface{}, len(qp.InfoHashes()))

	for _, hash := range qp.InfoHashes() {
		torrent, exists := s.registry.Torrent(hash)
		if !exists {
			continue
		}

		files[string(hash[:])] = map[string]interface{}{
			"complete":   torrent.Seeders.Load(),
			"incomplete": torrent.Leechers.Load(),
			"downloaded": torrent.Snatched.Load(),
		}
	}

	buf.Reset()

	encoder := bencode.NewEncoder(buf)
	if err := encoder.Encode(map[string]interface{}{"files": files}); err != nil {
		panic(err)
	}

	return fasthttp.StatusOK
}
