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

package swarm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"kumo/config"
	"kumo/database"
	"kumo/database/types"
	"kumo/stats"
	"kumo/storage"
	"kumo/util"
	"kumo/verifier"
)

// ErrTorrentNotRegistered is returned for unknown info hashes while the
// torrent whitelist is enforced.
var ErrTorrentNotRegistered = errors.New("Unregistered torrent")

var (
	peerExpiryInterval    int
	cleanupInterval       int
	syncInterval          int
	idleCheckInterval     int
	torrentReloadInterval int
)

func init() {
	intervals := config.Section("intervals")

	peerExpiryInterval, _ = intervals.GetInt("peer_inactivity", 3600)
	cleanupInterval, _ = intervals.GetInt("peer_cleanup", 300)
	syncInterval, _ = intervals.GetInt("swarm_sync", 30)
	idleCheckInterval, _ = intervals.GetInt("swarm_idle_check", 3600)
	torrentReloadInterval, _ = intervals.GetInt("database_reload", 45)
}

// Registry maps info hashes to live workers and keeps the in-memory
// torrent metadata cache that scrape and the multiplier math read from.
type Registry struct {
	db       *database.Database
	store    storage.PeerStore
	buffer   *stats.Buffer
	verifier *verifier.Verifier

	mu      sync.RWMutex
	workers map[types.TorrentHash]*Worker

	torrents atomic.Pointer[map[types.TorrentHash]*types.Torrent]

	// Serializes torrent cache writes; readers never take it
	writeMutex sync.Mutex

	enforceWhitelist bool
}

func NewRegistry(db *database.Database, store storage.PeerStore,
	buffer *stats.Buffer, v *verifier.Verifier) *Registry {
	enforce, _ := config.GetBool("enforce_torrent_whitelist", true)

	r := &Registry{
		db:               db,
		store:            store,
		buffer:           buffer,
		verifier:         v,
		workers:          make(map[types.TorrentHash]*Worker),
		enforceWhitelist: enforce,
	}

	empty := make(map[types.TorrentHash]*types.Torrent)
	r.torrents.Store(&empty)

	return r
}

// Start loads the torrent cache and keeps it fresh until ctx ends.
func (r *Registry) Start(ctx context.Context) {
	r.ReloadTorrents()

	go util.ContextTick(ctx, time.Duration(torrentReloadInterval)*time.Second, r.ReloadTorrents)
}

// ReloadTorrents merges the durable torrent table into the cache.
// Existing torrent objects are updated in place so workers holding a
// pointer observe multiplier and freeleech changes immediately.
func (r *Registry) ReloadTorrents() {
	r.ApplyTorrents(r.db.LoadTorrents())
}

func (r *Registry) ApplyTorrents(rows []database.TorrentRow) {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	old := *r.torrents.Load()
	next := make(map[types.TorrentHash]*types.Torrent, len(rows))

	for _, row := range rows {
		torrent, exists := old[row.InfoHash]
		if !exists {
			torrent = &types.Torrent{}
			torrent.ID.Store(row.ID)
			torrent.Seeders.Store(row.Seeders)
			torrent.Leechers.Store(row.Leechers)
			torrent.Snatched.Store(row.Snatched)
		}

		torrent.Freeleech.Store(row.Freeleech)
		torrent.FreeleechUntil.Store(row.FreeleechUntil)
		torrent.SetUpMultiplier(row.UpMultiplier)
		torrent.SetDownMultiplier(row.DownMultiplier)

		next[row.InfoHash] = torrent
	}

	r.torrents.Store(&next)
}

// Torrent resolves cached metadata without spawning a worker; the
// scrape path reads counts straight off the atomics.
func (r *Registry) Torrent(hash types.TorrentHash) (*types.Torrent, bool) {
	torrent, exists := (*r.torrents.Load())[hash]
	return torrent, exists
}

// Worker returns the live worker for hash, spawning one if needed.
// Unknown hashes either fail (whitelist enforced) or are registered on
// first announce.
func (r *Registry) Worker(hash types.TorrentHash) (*Worker, error) {
	r.mu.RLock()
	worker, exists := r.workers[hash]
	r.mu.RUnlock()

	if exists {
		return worker, nil
	}

	torrent, known := r.Torrent(hash)
	if !known {
		if r.enforceWhitelist {
			return nil, ErrTorrentNotRegistered
		}

		var err error
		if torrent, err = r.registerTorrent(hash); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Raced spawns resolve to whoever got the write lock first
	if worker, exists = r.workers[hash]; exists {
		return worker, nil
	}

	worker = newWorker(hash, torrent, r.store, r.buffer, r.verifier, func() {
		r.reap(hash)
	})
	r.workers[hash] = worker

	go worker.run(
		time.Duration(cleanupInterval)*time.Second,
		time.Duration(syncInterval)*time.Second,
		time.Duration(idleCheckInterval)*time.Second,
		time.Duration(peerExpiryInterval)*time.Second,
	)

	return worker, nil
}

// registerTorrent inserts an unseen hash into the durable store and the
// cache. Insert races collapse onto the row that won.
func (r *Registry) registerTorrent(hash types.TorrentHash) (*types.Torrent, error) {
	row, err := r.db.GetOrInsertTorrent(hash)
	if err != nil {
		return nil, err
	}

	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	old := *r.torrents.Load()
	if torrent, exists := old[hash]; exists {
		return torrent, nil
	}

	torrent := &types.Torrent{}
	torrent.ID.Store(row.ID)
	torrent.Seeders.Store(row.Seeders)
	torrent.Leechers.Store(row.Leechers)
	torrent.Snatched.Store(row.Snatched)
	torrent.Freeleech.Store(row.Freeleech)
	torrent.FreeleechUntil.Store(row.FreeleechUntil)
	torrent.SetUpMultiplier(row.UpMultiplier)
	torrent.SetDownMultiplier(row.DownMultiplier)

	next := make(map[types.TorrentHash]*types.Torrent, len(old)+1)
	for k, v := range old {
		next[k] = v
	}

	next[hash] = torrent
	r.torrents.Store(&next)

	return torrent, nil
}

// reap tears down a worker whose swarm has emptied.
func (r *Registry) reap(hash types.TorrentHash) {
	r.mu.Lock()

	worker, exists := r.workers[hash]
	if exists {
		delete(r.workers, hash)
	}

	r.mu.Unlock()

	if exists {
		worker.terminate()
		slog.Info("reaped idle swarm worker", "hash", hash.Hex())
	}
}

// Hashes snapshots the info hashes with live workers; the bonus pass
// walks these.
func (r *Registry) Hashes() []types.TorrentHash {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hashes := make([]types.TorrentHash, 0, len(r.workers))
	for hash := range r.workers {
		hashes = append(hashes, hash)
	}

	return hashes
}

// WorkerCount is exported for the stats surface.
func (r *Registry) WorkerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.workers)
}

// TorrentCount reports the size of the metadata cache.
func (r *Registry) TorrentCount() int {
	return len(*r.torrents.Load())
}

// Stop terminates every worker, flushing their pending counts.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, worker := range r.workers {
		worker.terminate()
		delete(r.workers, hash)
	}
}
