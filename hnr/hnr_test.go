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

package hnr

import (
	"testing"

	"kumo/database/types"
)

type warningCall struct {
	userID      uint32
	count       int
	maxWarnings int
}

type fakeStore struct {
	candidates []types.UserTorrentPair

	marked   []types.UserTorrentPair
	warnings []warningCall
	cleared  []uint32
}

func (f *fakeStore) SelectHnrCandidates(completedBefore, minSeedtime int64) ([]types.UserTorrentPair, error) {
	return f.candidates, nil
}

func (f *fakeStore) MarkHnr(pair types.UserTorrentPair) {
	f.marked = append(f.marked, pair)
}

func (f *fakeStore) ApplyHnrWarnings(userID uint32, count, maxWarnings int) {
	f.warnings = append(f.warnings, warningCall{userID, count, maxWarnings})
}

func (f *fakeStore) ClearHnrWarnings(userID uint32) {
	f.cleared = append(f.cleared, userID)
}

func TestRunMarksAndWarns(t *testing.T) {
	db := &fakeStore{candidates: []types.UserTorrentPair{
		{UserID: 1, TorrentID: 10},
		{UserID: 1, TorrentID: 11},
		{UserID: 2, TorrentID: 12},
	}}

	reloads := 0
	d := &Detector{db: db, gracePeriodDays: 14, minSeedtime: 259200, maxWarnings: 5,
		onApplied: func() { reloads++ }}

	if marked := d.Run(); marked != 3 {
		t.Fatalf("Expected 3 marked, got %d", marked)
	}

	if len(db.marked) != 3 {
		t.Fatalf("Expected 3 marks in store, got %d", len(db.marked))
	}

	perUser := make(map[uint32]int)
	for _, call := range db.warnings {
		perUser[call.userID] = call.count

		if call.maxWarnings != 5 {
			t.Fatalf("Expected maxWarnings 5, got %d", call.maxWarnings)
		}
	}

	if perUser[1] != 2 || perUser[2] != 1 {
		t.Fatalf("Expected warnings 2/1 for users 1/2, got %v", perUser)
	}

	// A pass that revokes leeching must refresh the request-path cache
	if reloads != 1 {
		t.Fatalf("Expected 1 user reload, got %d", reloads)
	}
}

func TestRunNoCandidates(t *testing.T) {
	db := &fakeStore{}

	reloads := 0
	d := &Detector{db: db, onApplied: func() { reloads++ }}

	if marked := d.Run(); marked != 0 {
		t.Fatalf("Expected 0 marked, got %d", marked)
	}

	if len(db.warnings) != 0 || reloads != 0 {
		t.Fatalf("Expected no warnings and no reload, got %d/%d", len(db.warnings), reloads)
	}
}

func TestForgive(t *testing.T) {
	db := &fakeStore{}

	reloads := 0
	d := &Detector{db: db, onApplied: func() { reloads++ }}

	d.Forgive(42)

	if len(db.cleared) != 1 || db.cleared[0] != 42 {
		t.Fatalf("Expected user 42 cleared, got %v", db.cleared)
	}

	if reloads != 1 {
		t.Fatalf("Expected 1 user reload, got %d", reloads)
	}
}
