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

package database

import (
	"bytes"
	"errors"
	"log/slog"
	"time"

	"kumo/collectors"
	"kumo/config"
)

/*
 * Channels are used for flushing to limit throughput to a manageable
 * level. If a buffer channel is less than half full on a flush, the
 * routine waits before flushing again; above half full it loops
 * immediately. User deltas and torrent syncs are commutative, so the
 * multi-row ON DUPLICATE KEY statements may land in any order.
 */

var (
	torrentFlushBufferSize  int
	userFlushBufferSize     int
	snatchFlushBufferSize   int
	seedtimeFlushBufferSize int

	flushSleepInterval int
	logFlushes         bool

	errGotNilFromChannel = errors.New("got nil while receiving from non-empty channel")
)

func init() {
	flushSleepInterval, _ = config.Section("intervals").GetInt("flush", 5)
	logFlushes, _ = config.GetBool("log_flushes", false)

	channels := config.Section("channels")
	torrentFlushBufferSize, _ = channels.GetInt("torrent", 5000)
	userFlushBufferSize, _ = channels.GetInt("user", 5000)
	snatchFlushBufferSize, _ = channels.GetInt("snatch", 100)
	seedtimeFlushBufferSize, _ = channels.GetInt("seedtime", 1000)
}

func (db *Database) startFlushing() {
	db.userChannel = make(chan *bytes.Buffer, userFlushBufferSize)
	db.torrentChannel = make(chan *bytes.Buffer, torrentFlushBufferSize)
	db.snatchChannel = make(chan *bytes.Buffer, snatchFlushBufferSize)
	db.seedtimeChannel = make(chan seedtimeDelta, seedtimeFlushBufferSize)

	go db.flushUsers()
	go db.flushTorrents()
	go db.flushSnatches()
	go db.flushSeedtime()
}

func (db *Database) closeFlushChannels() {
	close(db.userChannel)
	close(db.torrentChannel)
	close(db.snatchChannel)
	close(db.seedtimeChannel)
}

func (db *Database) flushUsers() {
	db.waitGroup.Add(1)
	defer db.waitGroup.Done()

	var (
		query bytes.Buffer
		count int
	)

	for {
		query.Reset()
		query.WriteString("INSERT IGNORE INTO users (ID, Uploaded, Downloaded) VALUES ")

		length := len(db.userChannel)

		for count = 0; count < length; count++ {
			b := <-db.userChannel
			if b == nil {
				panic(errGotNilFromChannel)
			}

			query.Write(b.Bytes())
			db.bufferPool.Give(b)

			if count != length-1 {
				query.WriteRune(',')
			}
		}

		if count > 0 {
			if logFlushes && !db.terminate.Load() {
				slog.Info("flushing", "channel", "users", "count", count)
			}

			query.WriteString(" ON DUPLICATE KEY UPDATE Uploaded = Uploaded + VALUES(Uploaded), " +
				"Downloaded = Downloaded + VALUES(Downloaded)")

			start := time.Now()

			db.mainConn.mutex.Lock()
			db.mainConn.exec(&query)
			db.mainConn.mutex.Unlock()

			collectors.UpdateFlushTime("users", time.Since(start))

			if length < (userFlushBufferSize >> 1) {
				time.Sleep(time.Duration(flushSleepInterval) * time.Second)
			}
		} else if db.terminate.Load() {
			break
		} else {
			time.Sleep(time.Second)
		}
	}
}

func (db *Database) flushTorrents() {
	db.waitGroup.Add(1)
	defer db.waitGroup.Done()

	var (
		query bytes.Buffer
		count int
	)

	for {
		query.Reset()
		query.WriteString("INSERT IGNORE INTO torrents (ID, Seeders, Leechers, Snatched) VALUES ")

		length := len(db.torrentChannel)

		for count = 0; count < length; count++ {
			b := <-db.torrentChannel
			if b == nil {
				panic(errGotNilFromChannel)
			}

			query.Write(b.Bytes())
			db.bufferPool.Give(b)

			if count != length-1 {
				query.WriteRune(',')
			}
		}

		if count > 0 {
			if logFlushes && !db.terminate.Load() {
				slog.Info("flushing", "channel", "torrents", "count", count)
			}

			query.WriteString(" ON DUPLICATE KEY UPDATE Seeders = VALUES(Seeders), " +
				"Leechers = VALUES(Leechers), Snatched = Snatched + VALUES(Snatched)")

			start := time.Now()

			db.mainConn.mutex.Lock()
			db.mainConn.exec(&query)
			db.mainConn.mutex.Unlock()

			collectors.UpdateFlushTime("torrents", time.Since(start))

			if length < (torrentFlushBufferSize >> 1) {
				time.Sleep(time.Duration(flushSleepInterval) * time.Second)
			}
		} else if db.terminate.Load() {
			break
		} else {
			time.Sleep(time.Second)
		}
	}
}

func (db *Database) flushSnatches() {
	db.waitGroup.Add(1)
	defer db.waitGroup.Done()

	var (
		query bytes.Buffer
		count int
	)

	for {
		query.Reset()
		query.WriteString("INSERT INTO snatches (UserID, TorrentID, CompletedAt, LastAnnounce) VALUES ")

		length := len(db.snatchChannel)

		for count = 0; count < length; count++ {
			b := <-db.snatchChannel
			if b == nil {
				panic(errGotNilFromChannel)
			}

			query.Write(b.Bytes())
			db.bufferPool.Give(b)

			if count != length-1 {
				query.WriteRune(',')
			}
		}

		if count > 0 {
			if logFlushes && !db.terminate.Load() {
				slog.Info("flushing", "channel", "snatches", "count", count)
			}

			// A re-download keeps its original CompletedAt
			query.WriteString(" ON DUPLICATE KEY UPDATE LastAnnounce = VALUES(LastAnnounce)")

			start := time.Now()

			db.mainConn.mutex.Lock()
			db.mainConn.exec(&query)
			db.mainConn.mutex.Unlock()

			collectors.UpdateFlushTime("snatches", time.Since(start))

			if length < (snatchFlushBufferSize >> 1) {
				time.Sleep(time.Duration(flushSleepInterval) * time.Second)
			}
		} else if db.terminate.Load() {
			break
		} else {
			time.Sleep(time.Second)
		}
	}
}

func (db *Database) flushSeedtime() {
	db.waitGroup.Add(1)
	defer db.waitGroup.Done()

	for {
		length := len(db.seedtimeChannel)

		if length > 0 {
			if logFlushes && !db.terminate.Load() {
				slog.Info("flushing", "channel", "seedtime", "count", length)
			}

			start := time.Now()

			for i := 0; i < length; i++ {
				entry := <-db.seedtimeChannel

				db.mainConn.mutex.Lock()
				db.mainConn.execute(db.updateSeedtimeStmt,
					entry.delta, entry.now, entry.userID, entry.torrentID)
				db.mainConn.mutex.Unlock()
			}

			collectors.UpdateFlushTime("seedtime", time.Since(start))

			if length < (seedtimeFlushBufferSize >> 1) {
				time.Sleep(time.Duration(flushSleepInterval) * time.Second)
			}
		} else if db.terminate.Load() {
			break
		} else {
			time.Sleep(time.Second)
		}
	}
}
