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

// Package ratelimit tracks request timestamps per (IP, class) over a
// sliding 60 second window. A denial reports how long until the oldest
// timestamp leaves the window.
package ratelimit

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"kumo/config"
	"kumo/util"
)

const Window = 60 * time.Second

// Request classes with independently configured limits.
const (
	ClassAnnounce = "announce"
	ClassScrape   = "scrape"
	ClassAdminAPI = "admin_api"
)

type key struct {
	addr  netip.Addr
	class string
}

type record struct {
	mu         sync.Mutex
	timestamps []time.Time
}

type Limiter struct {
	enabled bool

	limits    map[string]int // class -> max requests per window
	whitelist map[netip.Addr]struct{}

	mu      sync.RWMutex
	records map[key]*record

	now func() time.Time
}

// NewFromConfig builds the limiter from the ratelimit config section:
// enabled flag, per-class limits and the exempt IP list.
func NewFromConfig() *Limiter {
	section := config.Section("ratelimit")

	enabled, _ := section.GetBool("enabled", true)

	limits := make(map[string]int)
	limitsSection := section.Section("limits")
	for _, class := range []string{ClassAnnounce, ClassScrape, ClassAdminAPI} {
		limits[class], _ = limitsSection.GetInt(class, defaultLimit(class))
	}

	whitelist := make(map[netip.Addr]struct{})

	for _, entry := range section.Strings("whitelist") {
		if addr, err := netip.ParseAddr(entry); err == nil {
			whitelist[addr.Unmap()] = struct{}{}
		}
	}

	return New(enabled, limits, whitelist)
}

func New(enabled bool, limits map[string]int, whitelist map[netip.Addr]struct{}) *Limiter {
	return &Limiter{
		enabled:   enabled,
		limits:    limits,
		whitelist: whitelist,
		records:   make(map[key]*record),
		now:       time.Now,
	}
}

func defaultLimit(class string) int {
	switch class {
	case ClassAnnounce:
		return 60
	case ClassScrape:
		return 30
	default:
		return 120
	}
}

// Allow records one request and reports whether it fits the window.
// When denied, retryAfter is the wait until the oldest request ages out.
func (l *Limiter) Allow(addr netip.Addr, class string) (allowed bool, retryAfter time.Duration) {
	if !l.enabled {
		return true, 0
	}

	if _, exempt := l.whitelist[addr.Unmap()]; exempt {
		return true, 0
	}

	max, exists := l.limits[class]
	if !exists || max <= 0 {
		return true, 0
	}

	rec := l.record(key{addr: addr.Unmap(), class: class})

	now := l.now()
	windowStart := now.Add(-Window)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Drop timestamps that fell out of the window
	live := rec.timestamps[:0]

	for _, ts := range rec.timestamps {
		if ts.After(windowStart) {
			live = append(live, ts)
		}
	}

	rec.timestamps = live

	if len(rec.timestamps) < max {
		rec.timestamps = append(rec.timestamps, now)
		return true, 0
	}

	return false, rec.timestamps[0].Add(Window).Sub(now)
}

func (l *Limiter) record(k key) *record {
	l.mu.RLock()
	rec, exists := l.records[k]
	l.mu.RUnlock()

	if exists {
		return rec
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, exists = l.records[k]; exists {
		return rec
	}

	rec = &record{}
	l.records[k] = rec

	return rec
}

// Sweep drops records whose windows have emptied.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, rec := range l.records {
		rec.mu.Lock()
		empty := len(rec.timestamps) == 0 || !rec.timestamps[len(rec.timestamps)-1].After(cutoff)
		rec.mu.Unlock()

		if empty {
			delete(l.records, k)
		}
	}
}

// Start runs the periodic sweep until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context) {
	go util.ContextTick(ctx, 5*time.Minute, l.Sweep)
}
