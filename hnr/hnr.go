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

// Package hnr flags snatches whose seedtime never reached the required
// minimum within the grace period, and disables leeching for users who
// collect too many warnings.
package hnr

import (
	"context"
	"log/slog"
	"time"

	"kumo/config"
	"kumo/database/types"
	"kumo/util"
)

// store is the slice of the durable store the detector drives.
type store interface {
	SelectHnrCandidates(completedBefore, minSeedtime int64) ([]types.UserTorrentPair, error)
	MarkHnr(pair types.UserTorrentPair)
	ApplyHnrWarnings(userID uint32, count int, maxWarnings int)
	ClearHnrWarnings(userID uint32)
}

type Detector struct {
	db store

	minSeedtime     int64
	gracePeriodDays int64
	maxWarnings     int
	runInterval     time.Duration

	// onApplied propagates fresh CanLeech flags to the gate cache so a
	// revocation takes effect before the next reload tick
	onApplied func()
}

func NewFromConfig(db store, onApplied func()) *Detector {
	section := config.Section("hnr")

	minSeedtime, _ := section.GetInt("min_seedtime", 259200)
	graceDays, _ := section.GetInt("grace_period_days", 14)
	maxWarnings, _ := section.GetInt("max_warnings", 5)
	runInterval, _ := section.GetInt("run_interval", 21600)

	return &Detector{
		db:              db,
		minSeedtime:     int64(minSeedtime),
		gracePeriodDays: int64(graceDays),
		maxWarnings:     maxWarnings,
		runInterval:     time.Duration(runInterval) * time.Second,
		onApplied:       onApplied,
	}
}

// Start schedules periodic detection runs until ctx is cancelled.
func (d *Detector) Start(ctx context.Context) {
	go util.ContextTick(ctx, d.runInterval, func() {
		d.Run()
	})
}

// Run performs one detection pass and returns how many snatches were
// newly marked. Already-marked snatches are never selected again, so a
// user is warned at most once per snatch.
func (d *Detector) Run() int {
	completedBefore := time.Now().Unix() - d.gracePeriodDays*86400

	candidates, err := d.db.SelectHnrCandidates(completedBefore, d.minSeedtime)
	if err != nil {
		slog.Error("hit and run selection failed", "error", err)
		return 0
	}

	if len(candidates) == 0 {
		return 0
	}

	warnings := make(map[uint32]int)

	for _, pair := range candidates {
		d.db.MarkHnr(pair)
		warnings[pair.UserID]++
	}

	for userID, count := range warnings {
		d.db.ApplyHnrWarnings(userID, count, d.maxWarnings)
	}

	if d.onApplied != nil {
		d.onApplied()
	}

	slog.Info("hit and run pass complete", "marked", len(candidates), "users", len(warnings))

	return len(candidates)
}

// Forgive clears a user's warnings and restores leeching; the admin
// surface calls this after a manual review.
func (d *Detector) Forgive(userID uint32) {
	d.db.ClearHnrWarnings(userID)

	if d.onApplied != nil {
		d.onApplied()
	}
}
