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

// Package swarm owns per-torrent peer state. One worker serializes all
// announces for its torrent; the registry spawns workers on demand and
// reaps them when their swarms empty out.
package swarm

import (
	"errors"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	lock "github.com/viney-shih/go-lock"

	"kumo/database/types"
	"kumo/stats"
	"kumo/storage"
	"kumo/util"
	"kumo/verifier"
)

type Event uint8

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

// ParseEvent maps the wire event string; anything unrecognized counts
// as a plain update.
func ParseEvent(s string) Event {
	switch s {
	case "started":
		return EventStarted
	case "completed":
		return EventCompleted
	case "stopped":
		return EventStopped
	default:
		return EventNone
	}
}

var (
	// ErrKeyRequired is returned when a known peer announces without its key.
	ErrKeyRequired = errors.New("Announce key required")

	// ErrInvalidKey is returned when the presented key does not match.
	ErrInvalidKey = errors.New("Invalid announce key")
)

// announceKeyBytes hex-encodes to a 16 character key.
const announceKeyBytes = 8

// seedtimeClampSeconds caps the credit from a single announce gap so a
// stale peer record cannot mint days of seedtime at once.
const seedtimeClampSeconds = 7200

// Announce is one validated announce, independent of the transport it
// arrived on. UserID 0 marks an anonymous (UDP) announce.
type Announce struct {
	PeerID     types.PeerID
	UserID     uint32
	IP         netip.Addr
	Port       uint16
	Uploaded   uint64
	Downloaded uint64
	Left       uint64
	Event      Event
	Key        string
	NumWant    int
}

// Result carries everything the transport layer needs to build its
// response and feed the stats pipeline.
type Result struct {
	Seeders  uint32
	Leechers uint32
	Snatched uint32

	Peers []*storage.Peer

	DeltaUp       uint64
	DeltaDown     uint64
	SeedtimeDelta int64
	Completed     bool

	AnnounceKey string
}

type Worker struct {
	hash    types.TorrentHash
	torrent *types.Torrent

	store    storage.PeerStore
	buffer   *stats.Buffer
	verifier *verifier.Verifier

	lock lock.Mutex

	completedDelta atomic.Uint32

	stop   chan struct{}
	onIdle func()
}

func newWorker(hash types.TorrentHash, torrent *types.Torrent, store storage.PeerStore,
	buffer *stats.Buffer, v *verifier.Verifier, onIdle func()) *Worker {
	return &Worker{
		hash:     hash,
		torrent:  torrent,
		store:    store,
		buffer:   buffer,
		verifier: v,
		lock:     lock.NewCASMutex(),
		stop:     make(chan struct{}),
		onIdle:   onIdle,
	}
}

// Torrent exposes the cached metadata row for multiplier lookups.
func (w *Worker) Torrent() *types.Torrent {
	return w.torrent
}

// Announce applies one announce to the swarm and returns the response
// data. Announces for the same torrent are fully serialized.
func (w *Worker) Announce(a *Announce) (*Result, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	now := time.Now().Unix()
	key := storage.NewPeerKey(a.IP, a.Port)

	old, err := w.store.GetPeer(w.hash, key)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	// A re-announcing peer must present the key it was issued. Without
	// this, a forged announce with a victim's IP could evict them or
	// hijack their session counters.
	if old != nil && old.AnnounceKey != "" {
		if a.Key == "" {
			return nil, ErrKeyRequired
		}

		if a.Key != old.AnnounceKey {
			return nil, ErrInvalidKey
		}

		res.AnnounceKey = old.AnnounceKey
	} else if a.Key != "" {
		// First sight with a client-supplied key (the UDP path, where
		// the response cannot carry a server-issued key)
		res.AnnounceKey = a.Key
	} else {
		res.AnnounceKey = util.RandHexBytes(announceKeyBytes)
	}

	if old != nil {
		if a.Uploaded > old.Uploaded {
			res.DeltaUp = a.Uploaded - old.Uploaded
		}

		if a.Downloaded > old.Downloaded {
			res.DeltaDown = a.Downloaded - old.Downloaded
		}

		// Seedtime accrues only across consecutive seeding announces
		if old.Seeding() && a.Left == 0 && now > old.UpdatedAt {
			res.SeedtimeDelta = now - old.UpdatedAt
			if res.SeedtimeDelta > seedtimeClampSeconds {
				res.SeedtimeDelta = seedtimeClampSeconds
			}
		}
	}

	if a.Event == EventStopped {
		if old != nil {
			if err = w.store.DeletePeer(w.hash, key); err != nil {
				return nil, err
			}
		}
	} else {
		peer := &storage.Peer{
			ID:          a.PeerID,
			UserID:      a.UserID,
			IP:          a.IP.Unmap(),
			Port:        a.Port,
			Uploaded:    a.Uploaded,
			Downloaded:  a.Downloaded,
			Left:        a.Left,
			UpdatedAt:   now,
			AnnounceKey: res.AnnounceKey,
			Connectable: storage.ConnectableUnknown,
		}

		if w.verifier != nil {
			if connectable, known := w.verifier.Check(a.IP, a.Port); known {
				if connectable {
					peer.Connectable = storage.ConnectableYes
				} else {
					peer.Connectable = storage.ConnectableNo
				}
			}
		}

		if err = w.store.PutPeer(w.hash, key, peer); err != nil {
			return nil, err
		}
	}

	if a.Event == EventCompleted {
		res.Completed = true
		w.torrent.Snatched.Add(1)
		w.completedDelta.Add(1)
	}

	seeders, leechers, err := w.store.Counts(w.hash)
	if err != nil {
		return nil, err
	}

	w.torrent.Seeders.Store(seeders)
	w.torrent.Leechers.Store(leechers)

	res.Seeders = seeders
	res.Leechers = leechers
	res.Snatched = w.torrent.Snatched.Load()

	if a.Event != EventStopped && a.NumWant > 0 {
		all, err := w.store.GetAllPeers(w.hash)
		if err != nil {
			return nil, err
		}

		res.Peers = selectPeers(all, key, a.Left == 0, a.NumWant)
	}

	return res, nil
}

// sync pushes the current counts and pending snatch delta into the
// stats buffer and refreshes the cached torrent row.
func (w *Worker) sync() {
	seeders, leechers, err := w.store.Counts(w.hash)
	if err != nil {
		slog.Error("failed to count swarm", "hash", w.hash.Hex(), "error", err)
		return
	}

	w.torrent.Seeders.Store(seeders)
	w.torrent.Leechers.Store(leechers)

	w.buffer.RecordTorrent(w.torrent.ID.Load(), seeders, leechers, w.completedDelta.Swap(0))
}

func (w *Worker) cleanup(expiry time.Duration) {
	cutoff := time.Now().Add(-expiry).Unix()

	removed, err := w.store.CleanupExpired(w.hash, cutoff)
	if err != nil {
		slog.Error("failed to expire peers", "hash", w.hash.Hex(), "error", err)
		return
	}

	if removed > 0 {
		slog.Info("expired peers", "hash", w.hash.Hex(), "count", removed)
		w.sync()
	}
}

func (w *Worker) idleCheck() {
	count, err := w.store.CountPeers(w.hash)
	if err != nil {
		slog.Error("failed to count peers", "hash", w.hash.Hex(), "error", err)
		return
	}

	if count == 0 {
		w.onIdle()
	}
}

func (w *Worker) run(cleanupInterval, syncInterval, idleInterval time.Duration, expiry time.Duration) {
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()

	idleTicker := time.NewTicker(idleInterval)
	defer idleTicker.Stop()

	for {
		select {
		case <-w.stop:
			w.sync()
			return
		case <-cleanupTicker.C:
			w.cleanup(expiry)
		case <-syncTicker.C:
			w.sync()
		case <-idleTicker.C:
			w.idleCheck()
		}
	}
}

// terminate stops the background loop. The registry calls it exactly
// once, under its write lock.
func (w *Worker) terminate() {
	close(w.stop)
}
