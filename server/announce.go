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
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/zeebo/bencode"

	"kumo/config"
	"kumo/database/types"
	"kumo/ratelimit"
	"kumo/server/params"
	"kumo/storage"
	"kumo/swarm"
	"kumo/util"
)

var (
	announceInterval    int
	minAnnounceInterval int
	announceJitter      float64

	minRatio        float64
	ratioGraceBytes uint64
)

const defaultNumWant = 50

func init() {
	intervals := config.Section("intervals")

	announceInterval, _ = intervals.GetInt("announce", 1800)
	minAnnounceInterval, _ = intervals.GetInt("min_announce", 900)
	announceJitter, _ = config.GetFloat("announce_jitter", 0.1)

	minRatio, _ = config.GetFloat("min_ratio", 0.3)

	graceBytes, _ := config.GetInt("ratio_grace_bytes", 10<<30)
	ratioGraceBytes = uint64(graceBytes)
}

func (s *Server) announce(ctx *fasthttp.RequestCtx, passkey string, buf *bytes.Buffer) int {
	addr := remoteAddr(ctx)
	now := time.Now().Unix()

	if reason, banned := s.gate.CheckBanned(addr, now); banned {
		failure("IP banned: "+reason, buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if allowed, retryAfter := s.limiter.Allow(addr, ratelimit.ClassAnnounce); !allowed {
		seconds := int(retryAfter/time.Second) + 1
		ctx.Response.Header.Set("Retry-After", fmt.Sprintf("%d", seconds))
		failure(fmt.Sprintf("Rate limit exceeded, retry in %d seconds", seconds), buf)

		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	user, exists := s.gate.User(passkey)
	if !exists {
		failure("Invalid passkey", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	qp := params.ParseQuery(string(ctx.URI().QueryString()))

	if len(qp.InfoHashes()) == 0 {
		if qp.InvalidInfoHash() {
			failure("invalid info_hash", buf)
		} else {
			failure("missing info_hash", buf)
		}

		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	} else if len(qp.InfoHashes()) > 1 {
		failure("invalid info_hash - only one per announce", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	peerIDStr, exists := qp.Get("peer_id")
	if !exists {
		failure("missing peer_id", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if len(peerIDStr) != types.PeerIDSize {
		failure("invalid peer_id", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	portRaw, exists := qp.Get("port")
	if !exists {
		failure("missing port", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	port, portOk := qp.GetUint16("port")
	if !portOk || port == 0 {
		failure(fmt.Sprintf("invalid port (port: %s)", portRaw), buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	uploaded, downloaded, left := uint64(0), uint64(0), uint64(0)

	for _, field := range []struct {
		name string
		dest *uint64
	}{
		{"uploaded", &uploaded},
		{"downloaded", &downloaded},
		{"left", &left},
	} {
		if _, present := qp.Get(field.name); !present {
			failure("missing "+field.name, buf)
			return fasthttp.StatusOK // Required by torrent clients to interpret failure response
		}

		value, ok := qp.GetUint64(field.name)
		if !ok {
			failure("invalid "+field.name, buf)
			return fasthttp.StatusOK // Required by torrent clients to interpret failure response
		}

		*field.dest = value
	}

	peerID := types.PeerIDFromBytes([]byte(peerIDStr))

	if !s.gate.ClientApproved(peerID) {
		failure(fmt.Sprintf("Your client is not approved (peer_id: %s)", peerIDStr), buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	// Leech eligibility only gates starting or continuing a download
	if left > 0 {
		if !user.CanLeech.Load() {
			failure("Leeching disabled — please contact staff", buf)
			return fasthttp.StatusOK // Required by torrent clients to interpret failure response
		}

		required := user.RequiredRatioValue()
		if required <= 0 {
			required = minRatio
		}

		if !ratioAllowed(user.Uploaded.Load(), user.Downloaded.Load(), required, ratioGraceBytes) {
			failure("Ratio too low — seed more before downloading", buf)
			return fasthttp.StatusOK // Required by torrent clients to interpret failure response
		}
	}

	numWant := uint64(defaultNumWant)
	if value, ok := qp.GetUint64("numwant"); ok && value >= 1 && value <= 200 {
		numWant = value
	}

	event, _ := qp.Get("event")
	key, _ := qp.Get("key")

	compactRaw, _ := qp.Get("compact")
	compact := compactRaw != "0"

	worker, err := s.registry.Worker(qp.InfoHashes()[0])
	if err != nil {
		if errors.Is(err, swarm.ErrTorrentNotRegistered) {
			failure("Unregistered torrent", buf)
		} else {
			failure("Tracker temporarily unavailable, try again later", buf)
		}

		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	res, err := worker.Announce(&swarm.Announce{
		PeerID:     peerID,
		UserID:     user.ID.Load(),
		IP:         addr,
		Port:       port,
		Uploaded:   uploaded,
		Downloaded: downloaded,
		Left:       left,
		Event:      swarm.ParseEvent(event),
		Key:        key,
		NumWant:    int(numWant),
	})
	if err != nil {
		if errors.Is(err, swarm.ErrKeyRequired) || errors.Is(err, swarm.ErrInvalidKey) {
			failure(err.Error(), buf)
		} else {
			failure("Tracker temporarily unavailable, try again later", buf)
		}

		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	torrent := worker.Torrent()

	creditUp, creditDown := creditDeltas(res.DeltaUp, res.DeltaDown, torrent, now)

	userID := user.ID.Load()

	if creditUp > 0 {
		user.Uploaded.Add(creditUp)
	}

	if creditDown > 0 {
		user.Downloaded.Add(creditDown)
	}

	s.buffer.RecordUser(userID, creditUp, creditDown)

	if res.Completed {
		s.db.QueueSnatch(userID, torrent.ID.Load(), now)
	}

	if res.SeedtimeDelta > 0 && userID != 0 {
		s.db.QueueSeedtime(userID, torrent.ID.Load(), res.SeedtimeDelta, now)
	}

	response := make(map[string]interface{})
	response["complete"] = res.Seeders
	response["incomplete"] = res.Leechers
	response["downloaded"] = res.Snatched
	response["interval"] = util.ApplyJitter(announceInterval, announceJitter)
	response["min interval"] = minAnnounceInterval
	response["tracker id"] = res.AnnounceKey

	if compact {
		peers4, peers6 := compactPeers(res.Peers)

		response["peers"] = peers4

		if len(peers6) > 0 {
			response["peers6"] = peers6
		}
	} else {
		peerList := make([]map[string]interface{}, len(res.Peers))

		for i, peer := range res.Peers {
			peerList[i] = map[string]interface{}{
				"ip":   peer.IP.String(),
				"port": peer.Port,
			}
		}

		response["peers"] = peerList
	}

	buf.Reset()

	encoder := bencode.NewEncoder(buf)
	if err = encoder.Encode(response); err != nil {
		panic(err)
	}

	return fasthttp.StatusOK
}

// ratioAllowed reports whether a user may keep leeching. Accounts below
// the grace threshold are never blocked so new users can build ratio.
func ratioAllowed(up, down uint64, required float64, graceBytes uint64) bool {
	if down < graceBytes || down == 0 {
		return true
	}

	return float64(up)/float64(down) >= required
}

// creditDeltas applies the torrent multipliers to the announced deltas;
// active freeleech zeroes the download side.
func creditDeltas(deltaUp, deltaDown uint64, torrent *types.Torrent, now int64) (uint64, uint64) {
	creditUp := uint64(float64(deltaUp) * torrent.UpMultiplierValue())
	creditDown := uint64(float64(deltaDown) * torrent.EffectiveDownMultiplier(now))

	return creditUp, creditDown
}

// compactPeers packs peers into the BEP 23 (6 bytes) and BEP 7 (18
// bytes) wire forms, ports big-endian.
func compactPeers(peers []*storage.Peer) (peers4, peers6 []byte) {
	peers4 = make([]byte, 0, len(peers)*6)
	peers6 = make([]byte, 0)

	for _, peer := range peers {
		if peer.IP.Is4() {
			ip := peer.IP.As4()
			peers4 = append(peers4, ip[:]...)
			peers4 = append(peers4, byte(peer.Port>>8), byte(peer.Port))
		} else {
			ip := peer.IP.As16()
			peers6 = append(peers6, ip[:]...)
			peers6 = append(peers6, byte(peer.Port>>8), byte(peer.Port))
		}
	}

	return peers4, peers6
}
