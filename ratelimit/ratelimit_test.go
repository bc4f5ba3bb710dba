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

package ratelimit

import (
	"net/netip"
	"testing"
	"time"
)

func newTestLimiter(limits map[string]int, whitelist map[netip.Addr]struct{}) (*Limiter, *time.Time) {
	l := New(true, limits, whitelist)

	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	return l, &now
}

func TestAllowUntilLimit(t *testing.T) {
	l, _ := newTestLimiter(map[string]int{ClassAnnounce: 3}, nil)
	addr := netip.MustParseAddr("192.0.2.1")

	for i := 0; i < 3; i++ {
		if allowed, _ := l.Allow(addr, ClassAnnounce); !allowed {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}

	allowed, retryAfter := l.Allow(addr, ClassAnnounce)
	if allowed {
		t.Fatal("Expected 4th request to be denied")
	}

	if retryAfter <= 0 || retryAfter > Window {
		t.Fatalf("Expected retry_after in (0, 60s], got %v", retryAfter)
	}
}

func TestWindowSlides(t *testing.T) {
	l, now := newTestLimiter(map[string]int{ClassAnnounce: 2}, nil)
	addr := netip.MustParseAddr("192.0.2.2")

	l.Allow(addr, ClassAnnounce)
	l.Allow(addr, ClassAnnounce)

	if allowed, _ := l.Allow(addr, ClassAnnounce); allowed {
		t.Fatal("Expected denial at the limit")
	}

	// Advance past the window; the old timestamps age out
	*now = now.Add(Window + time.Second)

	if allowed, _ := l.Allow(addr, ClassAnnounce); !allowed {
		t.Fatal("Expected allowance after window slid")
	}
}

func TestClassesIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[string]int{ClassAnnounce: 1, ClassScrape: 1}, nil)
	addr := netip.MustParseAddr("192.0.2.3")

	l.Allow(addr, ClassAnnounce)

	if allowed, _ := l.Allow(addr, ClassScrape); !allowed {
		t.Fatal("Expected scrape budget to be untouched by announces")
	}

	if allowed, _ := l.Allow(addr, ClassAnnounce); allowed {
		t.Fatal("Expected announce budget to be spent")
	}
}

func TestWhitelistBypass(t *testing.T) {
	addr := netip.MustParseAddr("192.0.2.4")
	l, _ := newTestLimiter(map[string]int{ClassAnnounce: 1},
		map[netip.Addr]struct{}{addr: {}})

	for i := 0; i < 10; i++ {
		if allowed, _ := l.Allow(addr, ClassAnnounce); !allowed {
			t.Fatalf("Expected whitelisted IP to always pass, denied at %d", i+1)
		}
	}
}

func TestDisabledLimiter(t *testing.T) {
	l := New(false, map[string]int{ClassAnnounce: 1}, nil)
	addr := netip.MustParseAddr("192.0.2.5")

	for i := 0; i < 5; i++ {
		if allowed, _ := l.Allow(addr, ClassAnnounce); !allowed {
			t.Fatal("Expected disabled limiter to always allow")
		}
	}
}

func TestSweepDropsStaleRecords(t *testing.T) {
	l, now := newTestLimiter(map[string]int{ClassAnnounce: 5}, nil)

	l.Allow(netip.MustParseAddr("192.0.2.6"), ClassAnnounce)
	l.Allow(netip.MustParseAddr("192.0.2.7"), ClassAnnounce)

	if len(l.records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(l.records))
	}

	*now = now.Add(Window + time.Second)
	l.Sweep()

	if len(l.records) != 0 {
		t.Fatalf("Expected sweep to drop stale records, %d left", len(l.records))
	}
}
