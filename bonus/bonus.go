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

// Package bonus awards seeding points. Each pass walks the live swarms
// and credits every registered seeder; points can later be redeemed for
// upload credit.
package bonus

import (
	"context"
	"log/slog"
	"math"
	"time"

	"kumo/config"
	"kumo/database"
	"kumo/database/types"
	"kumo/storage"
	"kumo/util"
)

type Calculator struct {
	db    *database.Database
	store storage.PeerStore

	// swarms enumerates the hashes with live workers for one pass
	swarms func() []types.TorrentHash

	basePoints    float64
	bytesPerPoint uint64
	runInterval   time.Duration
}

func NewFromConfig(db *database.Database, store storage.PeerStore,
	swarms func() []types.TorrentHash) *Calculator {
	section := config.Section("bonus")

	basePoints, _ := section.GetFloat("base_points", 1.0)
	bytesPerPoint, _ := section.GetInt("bytes_per_point", 1<<30)
	runInterval, _ := section.GetInt("run_interval", 3600)

	return &Calculator{
		db:            db,
		store:         store,
		swarms:        swarms,
		basePoints:    basePoints,
		bytesPerPoint: uint64(bytesPerPoint),
		runInterval:   time.Duration(runInterval) * time.Second,
	}
}

// Start schedules periodic award passes until ctx is cancelled.
func (c *Calculator) Start(ctx context.Context) {
	go util.ContextTick(ctx, c.runInterval, func() {
		c.Run()
	})
}

// Run performs one award pass and returns the number of credited
// users. Per swarm each seeder earns base * sqrt(seeders) / max(1,
// leechers): thin swarms with demand pay best, dead swarms pay almost
// nothing.
func (c *Calculator) Run() int {
	points := make(map[uint32]float64)

	for _, hash := range c.swarms() {
		peers, err := c.store.GetAllPeers(hash)
		if err != nil {
			slog.Error("failed to read swarm for bonus pass", "hash", hash.Hex(), "error", err)
			continue
		}

		var seeders, leechers float64

		for _, peer := range peers {
			if peer.Seeding() {
				seeders++
			} else {
				leechers++
			}
		}

		if seeders == 0 {
			continue
		}

		award := c.basePoints * math.Sqrt(seeders) / math.Max(1, leechers)

		for _, peer := range peers {
			if peer.Seeding() && peer.UserID != 0 {
				points[peer.UserID] += award
			}
		}
	}

	if len(points) == 0 {
		return 0
	}

	c.db.ApplyBonusPoints(points)
	slog.Info("bonus pass complete", "users", len(points))

	return len(points)
}

// Redeem converts points into upload credit at the configured rate.
func (c *Calculator) Redeem(userID uint32, points float64) error {
	return c.db.RedeemBonusPoints(userID, points, c.bytesPerPoint)
}
