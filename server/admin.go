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
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"kumo/config"
	"kumo/database"
	"kumo/database/types"
	"kumo/ratelimit"
)

// admin handles the staff surface. Every call needs the shared token in
// X-Admin-Token; responses are JSON.
func (s *Server) admin(ctx *fasthttp.RequestCtx, segments []string, buf *bytes.Buffer) int {
	addr := remoteAddr(ctx)

	if allowed, retryAfter := s.limiter.Allow(addr, ratelimit.ClassAdminAPI); !allowed {
		ctx.Response.Header.Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)+1))
		return fasthttp.StatusTooManyRequests
	}

	adminToken, exists := config.Section("http").Get("admin_token", "")
	if !exists || adminToken == "" {
		// Surface disabled entirely when no token is configured
		return fasthttp.StatusNotFound
	}

	if string(ctx.Request.Header.Peek("X-Admin-Token")) != adminToken {
		return fasthttp.StatusForbidden
	}

	ctx.SetContentType("application/json")

	action := strings.Join(segments, "/")
	args := ctx.QueryArgs()
	now := time.Now().Unix()

	switch action {
	case "ban/add":
		ip := string(args.Peek("ip"))
		reason := string(args.Peek("reason"))
		expires, _ := strconv.ParseInt(string(args.Peek("expires")), 10, 64)

		if ip == "" {
			return adminError(buf, "missing ip")
		}

		if err := s.db.InsertBan(ip, reason, expires); err != nil {
			if errors.Is(err, database.ErrDuplicateBan) {
				return adminError(buf, "ban already exists")
			}

			return adminError(buf, "database error")
		}

		s.gate.ReloadBans()

		return adminOK(buf, nil)

	case "ban/remove":
		ip := string(args.Peek("ip"))
		if ip == "" {
			return adminError(buf, "missing ip")
		}

		s.db.DeleteBan(ip)
		s.gate.ReloadBans()

		return adminOK(buf, nil)

	case "ban/cleanup":
		removed := s.db.CleanupExpiredBans(now)
		s.gate.ReloadBans()

		return adminOK(buf, map[string]interface{}{"removed": removed})

	case "whitelist/add":
		prefix := string(args.Peek("prefix"))
		name := string(args.Peek("name"))

		if prefix == "" {
			return adminError(buf, "missing prefix")
		}

		s.db.InsertWhitelistEntry(prefix, name)
		s.gate.ReloadWhitelist()

		return adminOK(buf, nil)

	case "whitelist/remove":
		prefix := string(args.Peek("prefix"))
		if prefix == "" {
			return adminError(buf, "missing prefix")
		}

		s.db.DeleteWhitelistEntry(prefix)
		s.gate.ReloadWhitelist()

		return adminOK(buf, nil)

	case "reload":
		s.gate.Reload()
		s.registry.ReloadTorrents()

		return adminOK(buf, nil)

	case "hnr/run":
		// The detector refreshes the gate's user table itself
		marked := s.hnr.Run()

		return adminOK(buf, map[string]interface{}{"marked": marked})

	case "hnr/clear":
		userID, err := strconv.ParseUint(string(args.Peek("user")), 10, 32)
		if err != nil {
			return adminError(buf, "missing or invalid user")
		}

		s.hnr.Forgive(uint32(userID))

		return adminOK(buf, nil)

	case "bonus/run":
		credited := s.bonus.Run()
		return adminOK(buf, map[string]interface{}{"credited": credited})

	case "bonus/redeem":
		userID, err := strconv.ParseUint(string(args.Peek("user")), 10, 32)
		if err != nil {
			return adminError(buf, "missing or invalid user")
		}

		points, err := strconv.ParseFloat(string(args.Peek("points")), 64)
		if err != nil || points <= 0 {
			return adminError(buf, "missing or invalid points")
		}

		if err = s.bonus.Redeem(uint32(userID), points); err != nil {
			if errors.Is(err, database.ErrInsufficientPoints) {
				return adminError(buf, "insufficient points")
			} else if errors.Is(err, database.ErrUserNotFound) {
				return adminError(buf, "unknown user")
			}

			return adminError(buf, "database error")
		}

		s.gate.ReloadUsers()

		return adminOK(buf, nil)

	case "torrent":
		raw, err := hex.DecodeString(string(args.Peek("info_hash")))
		if err != nil || len(raw) != types.TorrentHashSize {
			return adminError(buf, "missing or invalid info_hash")
		}

		row, err := s.db.GetTorrent(types.TorrentHashFromBytes(raw))
		if err != nil {
			if errors.Is(err, database.ErrTorrentNotFound) {
				return adminError(buf, "unknown torrent")
			}

			return adminError(buf, "database error")
		}

		return adminOK(buf, map[string]interface{}{
			"id":              row.ID,
			"info_hash":       row.InfoHash.Hex(),
			"seeders":         row.Seeders,
			"leechers":        row.Leechers,
			"snatched":        row.Snatched,
			"freeleech":       row.Freeleech,
			"freeleech_until": row.FreeleechUntil,
			"up_multiplier":   row.UpMultiplier,
			"down_multiplier": row.DownMultiplier,
		})

	case "flush":
		s.collector.Flush()
		return adminOK(buf, nil)
	}

	return fasthttp.StatusNotFound
}

func adminOK(buf *bytes.Buffer, extra map[string]interface{}) int {
	payload := map[string]interface{}{"status": "ok"}
	for k, v := range extra {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	buf.Write(data)

	return fasthttp.StatusOK
}

func adminError(buf *bytes.Buffer, message string) int {
	data, err := json.Marshal(map[string]interface{}{
		"status": "error",
		"error":  message,
	})
	if err != nil {
		panic(err)
	}

	buf.Write(data)

	return fasthttp.StatusBadRequest
}
