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

package gate

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"kumo/database"
	"kumo/database/types"
)

func testPasskey(suffix string) string {
	return strings.Repeat("0", types.PasskeySize-len(suffix)) + suffix
}

func TestApplyUsersLookup(t *testing.T) {
	g := New(nil)

	passkey := testPasskey("1")

	g.ApplyUsers([]database.UserRow{
		{ID: 7, Passkey: passkey, Uploaded: 100, Downloaded: 50, CanLeech: true},
	})

	user, exists := g.User(passkey)
	if !exists {
		t.Fatal("Expected user to resolve")
	}

	if user.ID.Load() != 7 || user.Uploaded.Load() != 100 {
		t.Fatalf("Expected ID 7 uploaded 100, got %d/%d", user.ID.Load(), user.Uploaded.Load())
	}

	if _, exists = g.User(testPasskey("2")); exists {
		t.Fatal("Expected unknown passkey to miss")
	}
}

func TestApplyUsersPreservesPointers(t *testing.T) {
	g := New(nil)

	passkey := testPasskey("a")

	g.ApplyUsers([]database.UserRow{{ID: 1, Passkey: passkey, Uploaded: 10}})

	before, _ := g.User(passkey)

	g.ApplyUsers([]database.UserRow{{ID: 1, Passkey: passkey, Uploaded: 20}})

	after, _ := g.User(passkey)

	if before != after {
		t.Fatal("Expected reload to keep the same user object")
	}

	if before.Uploaded.Load() != 20 {
		t.Fatalf("Expected held reference to observe new uploaded, got %d", before.Uploaded.Load())
	}
}

func TestApplyUsersRefreshesLeechFlag(t *testing.T) {
	g := New(nil)

	passkey := testPasskey("b")

	g.ApplyUsers([]database.UserRow{{ID: 3, Passkey: passkey, CanLeech: true}})

	user, _ := g.User(passkey)
	if !user.CanLeech.Load() {
		t.Fatal("Expected user to start leech-enabled")
	}

	// Revocation written to the durable store lands on the same object,
	// so in-flight and future lookups both see it
	g.ApplyUsers([]database.UserRow{{ID: 3, Passkey: passkey, CanLeech: false}})

	if user.CanLeech.Load() {
		t.Fatal("Expected held reference to observe leech revocation")
	}
}

func TestClientApproved(t *testing.T) {
	g := New(nil)

	var peerID types.PeerID
	copy(peerID[:], "-TR3000-abcdefghijkl")

	// Empty whitelist approves everything
	if !g.ClientApproved(peerID) {
		t.Fatal("Expected empty whitelist to approve")
	}

	g.ApplyWhitelist([]types.WhitelistEntry{{Prefix: "-TR", Name: "Transmission"}})

	if !g.ClientApproved(peerID) {
		t.Fatal("Expected -TR prefix to be approved")
	}

	var other types.PeerID
	copy(other[:], "-AZ5750-abcdefghijkl")

	if g.ClientApproved(other) {
		t.Fatal("Expected -AZ prefix to be rejected")
	}

	// Entries longer than the matched prefix length can never match
	g.ApplyWhitelist([]types.WhitelistEntry{{Prefix: "-TR3000-", Name: "Transmission 3.0"}})

	if g.ClientApproved(peerID) {
		t.Fatal("Expected 8-byte prefix to not match 3-byte lookup")
	}
}

func TestCheckBannedCIDR(t *testing.T) {
	g := New(nil)
	now := time.Now().Unix()

	g.ApplyBans([]types.Ban{{ID: 1, IP: "10.0.0.0/8", Reason: "range ban"}})

	if reason, banned := g.CheckBanned(netip.MustParseAddr("10.1.2.3"), now); !banned || reason != "range ban" {
		t.Fatalf("Expected 10.1.2.3 banned with reason, got banned=%v reason=%q", banned, reason)
	}

	if _, banned := g.CheckBanned(netip.MustParseAddr("11.0.0.1"), now); banned {
		t.Fatal("Expected 11.0.0.1 to not be banned")
	}
}

func TestCheckBannedExact(t *testing.T) {
	g := New(nil)
	now := time.Now().Unix()

	g.ApplyBans([]types.Ban{{ID: 1, IP: "192.0.2.7", Reason: "cheater"}})

	if _, banned := g.CheckBanned(netip.MustParseAddr("192.0.2.7"), now); !banned {
		t.Fatal("Expected exact match to be banned")
	}

	if _, banned := g.CheckBanned(netip.MustParseAddr("192.0.2.8"), now); banned {
		t.Fatal("Expected neighbor to not be banned")
	}

	// IPv4-mapped form matches the same ban
	if _, banned := g.CheckBanned(netip.MustParseAddr("::ffff:192.0.2.7"), now); !banned {
		t.Fatal("Expected mapped address to match")
	}
}

func TestCheckBannedExpiry(t *testing.T) {
	g := New(nil)
	now := time.Now().Unix()

	g.ApplyBans([]types.Ban{
		{ID: 1, IP: "192.0.2.1", Reason: "expired", ExpiresAt: now - 10},
		{ID: 2, IP: "192.0.2.2", Reason: "active", ExpiresAt: now + 3600},
		{ID: 3, IP: "192.0.2.3", Reason: "permanent", ExpiresAt: 0},
	})

	if _, banned := g.CheckBanned(netip.MustParseAddr("192.0.2.1"), now); banned {
		t.Fatal("Expected expired ban to be ignored")
	}

	if _, banned := g.CheckBanned(netip.MustParseAddr("192.0.2.2"), now); !banned {
		t.Fatal("Expected unexpired ban to match")
	}

	if _, banned := g.CheckBanned(netip.MustParseAddr("192.0.2.3"), now); !banned {
		t.Fatal("Expected permanent ban to match")
	}
}

func TestApplyBansSkipsMalformed(t *testing.T) {
	g := New(nil)

	g.ApplyBans([]types.Ban{
		{ID: 1, IP: "not-an-ip", Reason: "junk"},
		{ID: 2, IP: "10.0.0.0/99", Reason: "bad mask"},
		{ID: 3, IP: "192.0.2.9", Reason: "fine"},
	})

	if g.BanCount() != 1 {
		t.Fatalf("Expected 1 parsed ban, got %d", g.BanCount())
	}
}
