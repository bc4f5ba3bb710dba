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

package stats

import (
	"context"
	"log/slog"
	"time"

	"kumo/config"
	"kumo/database"
	"kumo/util"
)

// Collector periodically drains the buffer into the database queues.
type Collector struct {
	buffer   *Buffer
	db       *database.Database
	interval time.Duration
}

func NewCollector(buffer *Buffer, db *database.Database) *Collector {
	interval, _ := config.Section("intervals").GetInt("stats_drain", 10)

	return &Collector{
		buffer:   buffer,
		db:       db,
		interval: time.Duration(interval) * time.Second,
	}
}

// Start drains on a fixed tick and performs one final drain when the
// context is cancelled, so shutdown loses nothing that was recorded.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		util.ContextTick(ctx, c.interval, c.Flush)
		c.Flush()
	}()
}

// Flush moves everything currently buffered into the flush channels.
func (c *Collector) Flush() {
	users, torrents := c.buffer.Drain()

	for _, entry := range users {
		c.db.QueueUserDelta(entry.UserID, entry.Up, entry.Down)
	}

	for _, entry := range torrents {
		c.db.QueueTorrentSync(entry.TorrentID, entry.Seeders, entry.Leechers, entry.SnatchDelta)
	}

	if len(users) > 0 || len(torrents) > 0 {
		slog.Debug("drained stats buffer", "users", len(users), "torrents", len(torrents))
	}
}
