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

package udp

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"kumo/collectors"
	"kumo/config"
	"kumo/gate"
	"kumo/ratelimit"
	"kumo/swarm"
	"kumo/util"
)

const maxPacketSize = 2048

var (
	announceInterval int
	announceJitter   float64
)

func init() {
	announceInterval, _ = config.Section("intervals").GetInt("announce", 1800)
	announceJitter, _ = config.GetFloat("announce_jitter", 0.1)
}

// Server answers BEP 15 announces. UDP announces are anonymous: there
// is no passkey in the frame, so peers registered here carry user id 0
// and never accrue transfer stats.
type Server struct {
	enabled bool
	addr    string

	// connTTL is how long an issued connection id stays valid
	connTTL time.Duration

	gate     *gate.Gate
	limiter  *ratelimit.Limiter
	registry *swarm.Registry

	conn *net.UDPConn

	// Issued connection ids and their expiry
	connMu      sync.Mutex
	connections map[uint64]int64
}

func NewFromConfig(g *gate.Gate, limiter *ratelimit.Limiter, registry *swarm.Registry) *Server {
	section := config.Section("udp")

	enabled, _ := section.GetBool("enabled", true)
	addr, _ := section.Get("addr", ":34001")
	connectionTimeout, _ := section.GetInt("connection_timeout", 120)

	return &Server{
		enabled:     enabled,
		addr:        addr,
		connTTL:     time.Duration(connectionTimeout) * time.Second,
		gate:        g,
		limiter:     limiter,
		registry:    registry,
		connections: make(map[uint64]int64),
	}
}

// Start binds the socket and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve udp addr: %w", err)
	}

	s.conn, err = net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}

	slog.Info("accepting udp packets", "addr", s.addr)

	go util.ContextTick(ctx, time.Minute, s.sweepConnections)

	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	buffer := make([]byte, maxPacketSize)

	for {
		n, remote, err := s.conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			slog.Error("udp read failed", "error", err)

			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])

		go s.handlePacket(packet, remote)
	}
}

func (s *Server) handlePacket(packet []byte, remote netip.AddrPort) {
	// Every request frame carries its action at the same offset
	if len(packet) < 16 {
		return
	}

	action := binary.BigEndian.Uint32(packet[8:12])
	transactionID := binary.BigEndian.Uint32(packet[12:16])
	addr := remote.Addr().Unmap()

	if reason, banned := s.gate.CheckBanned(addr, time.Now().Unix()); banned {
		s.send(buildErrorResponse(transactionID, "banned: "+reason), remote)
		return
	}

	switch action {
	case actionConnect:
		s.handleConnect(packet, remote)
	case actionAnnounce:
		if allowed, _ := s.limiter.Allow(addr, ratelimit.ClassAnnounce); !allowed {
			s.send(buildErrorResponse(transactionID, "rate limit exceeded"), remote)
			return
		}

		s.handleAnnounce(packet, remote)
	case actionScrape:
		if allowed, _ := s.limiter.Allow(addr, ratelimit.ClassScrape); !allowed {
			s.send(buildErrorResponse(transactionID, "rate limit exceeded"), remote)
			return
		}

		s.handleScrape(packet, remote)
	}
}

func (s *Server) handleConnect(packet []byte, remote netip.AddrPort) {
	req, err := parseConnect(packet)
	if err != nil {
		return
	}

	id := s.newConnectionID()

	s.send(buildConnectResponse(req.transactionID, id), remote)
}

func (s *Server) handleAnnounce(packet []byte, remote netip.AddrPort) {
	req, err := parseAnnounce(packet)
	if err != nil {
		return
	}

	if !s.validConnection(req.connectionID) {
		s.send(buildErrorResponse(req.transactionID, "invalid connection id"), remote)
		return
	}

	if req.port == 0 {
		s.send(buildErrorResponse(req.transactionID, "invalid port"), remote)
		return
	}

	if !s.gate.ClientApproved(req.peerID) {
		s.send(buildErrorResponse(req.transactionID, "client not approved"), remote)
		return
	}

	worker, err := s.registry.Worker(req.infoHash)
	if err != nil {
		if errors.Is(err, swarm.ErrTorrentNotRegistered) {
			s.send(buildErrorResponse(req.transactionID, "unregistered torrent"), remote)
		} else {
			s.send(buildErrorResponse(req.transactionID, "tracker temporarily unavailable"), remote)
		}

		return
	}

	numWant := int(req.numWant)
	if numWant <= 0 || numWant > 200 {
		numWant = 50
	}

	var event swarm.Event

	switch req.event {
	case eventStarted:
		event = swarm.EventStarted
	case eventCompleted:
		event = swarm.EventCompleted
	case eventStopped:
		event = swarm.EventStopped
	default:
		event = swarm.EventNone
	}

	// The ip field of the frame is trivially spoofable, so the source
	// address is authoritative. The client key doubles as the stored
	// announce key: the response frame has no room to issue one.
	res, err := worker.Announce(&swarm.Announce{
		PeerID:     req.peerID,
		UserID:     0,
		IP:         remote.Addr().Unmap(),
		Port:       req.port,
		Uploaded:   req.uploaded,
		Downloaded: req.downloaded,
		Left:       req.left,
		Event:      event,
		Key:        fmt.Sprintf("%08x", req.key),
		NumWant:    numWant,
	})
	if err != nil {
		if errors.Is(err, swarm.ErrKeyRequired) || errors.Is(err, swarm.ErrInvalidKey) {
			s.send(buildErrorResponse(req.transactionID, err.Error()), remote)
		} else {
			s.send(buildErrorResponse(req.transactionID, "tracker temporarily unavailable"), remote)
		}

		return
	}

	// The compact frame format only fits IPv4 peers
	peers := make([]byte, 0, len(res.Peers)*6)

	for _, peer := range res.Peers {
		if !peer.IP.Is4() {
			continue
		}

		ip := peer.IP.As4()
		peers = append(peers, ip[:]...)
		peers = append(peers, byte(peer.Port>>8), byte(peer.Port))
	}

	interval := uint32(util.ApplyJitter(announceInterval, announceJitter))

	s.send(buildAnnounceResponse(req.transactionID, interval, res.Leechers, res.Seeders, peers), remote)
}

func (s *Server) handleScrape(packet []byte, remote netip.AddrPort) {
	req, err := parseScrape(packet)
	if err != nil {
		return
	}

	if !s.validConnection(req.connectionID) {
		s.send(buildErrorResponse(req.transactionID, "invalid connection id"), remote)
		return
	}

	entries := make([]scrapeEntry, len(req.infoHashes))

	for i, hash := range req.infoHashes {
		if torrent, exists := s.registry.Torrent(hash); exists {
			entries[i] = scrapeEntry{
				seeders:   torrent.Seeders.Load(),
				completed: torrent.Snatched.Load(),
				leechers:  torrent.Leechers.Load(),
			}
		}
	}

	s.send(buildScrapeResponse(req.transactionID, entries), remote)
}

func (s *Server) send(resp []byte, remote netip.AddrPort) {
	if _, err := s.conn.WriteToUDPAddrPort(resp, remote); err != nil {
		slog.Debug("udp write failed", "remote", remote.String(), "error", err)
	}
}

func (s *Server) newConnectionID() uint64 {
	var raw [8]byte
	if _, err := crand.Read(raw[:]); err != nil {
		panic(err)
	}

	id := binary.BigEndian.Uint64(raw[:])

	s.connMu.Lock()
	s.connections[id] = time.Now().Add(s.connTTL).Unix()
	s.connMu.Unlock()

	return id
}

func (s *Server) validConnection(id uint64) bool {
	now := time.Now().Unix()

	s.connMu.Lock()
	defer s.connMu.Unlock()

	expiry, exists := s.connections[id]
	if !exists {
		return false
	}

	if expiry <= now {
		delete(s.connections, id)
		return false
	}

	return true
}

func (s *Server) sweepConnections() {
	now := time.Now().Unix()

	s.connMu.Lock()

	for id, expiry := range s.connections {
		if expiry <= now {
			delete(s.connections, id)
		}
	}

	live := len(s.connections)
	s.connMu.Unlock()

	collectors.UpdateUDPConnections(live)
}
