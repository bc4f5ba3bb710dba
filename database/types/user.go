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

package types

import (
	"math"
	"sync/atomic"
)

// User is the gate-cached view of a user row. Fields are atomics because
// the reload goroutine refreshes rows in place while announces read them.
type User struct {
	ID atomic.Uint32

	Uploaded    atomic.Uint64
	Downloaded  atomic.Uint64
	BonusPoints atomic.Uint64 // math.Float64bits

	HnrWarnings atomic.Uint32
	CanLeech    atomic.Bool

	// RequiredRatio of 0 means the global minimum applies.
	RequiredRatio atomic.Uint64 // math.Float64bits
}

func (u *User) RequiredRatioValue() float64 {
	return math.Float64frombits(u.RequiredRatio.Load())
}

func (u *User) SetRequiredRatio(r float64) {
	u.RequiredRatio.Store(math.Float64bits(r))
}

func (u *User) BonusPointsValue() float64 {
	return math.Float64frombits(u.BonusPoints.Load())
}

func (u *User) SetBonusPoints(p float64) {
	u.BonusPoints.Store(math.Float64bits(p))
}
