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

// Package gate is the in-memory reflection of the durable gate state:
// passkey to user, approved client prefixes and the ban list. Reads are
// lock-free pointer loads on the request path; the gate is the sole
// writer and swaps whole tables on reload.
package gate

import (
	"context"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kumo/config"
	"kumo/database"
	"kumo/database/types"
	"kumo/util"
)

// ClientPrefixLength is how many leading peer_id bytes are matched
// against the whitelist on the HTTP path. Stored prefixes may be up to
// eight bytes; longer ones can never match here, which mirrors the
// admin table being shared with stricter surfaces.
const ClientPrefixLength = 3

type ban struct {
	addr    netip.Addr
	prefix  netip.Prefix
	isCIDR  bool
	reason  string
	expires int64 // unix seconds; 0 means permanent
}

type Gate struct {
	db *database.Database

	users     atomic.Pointer[map[string]*types.User]
	whitelist atomic.Pointer[map[string]string]
	bans      atomic.Pointer[[]ban]

	// Serializes reloads; readers never take it
	writeMutex sync.Mutex
}

func New(db *database.Database) *Gate {
	g := &Gate{db: db}

	emptyUsers := make(map[string]*types.User)
	g.users.Store(&emptyUsers)

	emptyWhitelist := make(map[string]string)
	g.whitelist.Store(&emptyWhitelist)

	emptyBans := make([]ban, 0)
	g.bans.Store(&emptyBans)

	return g
}

// Reload rebuilds all three tables from the durable store.
func (g *Gate) Reload() {
	g.ReloadUsers()
	g.ReloadWhitelist()
	g.ReloadBans()
}

// Start keeps the tables fresh until ctx ends. Without this, external
// writes to the user table (new signups, HnR leech revocation) would
// only ever reach the request path through the admin surface.
func (g *Gate) Start(ctx context.Context) {
	interval, _ := config.Section("intervals").GetInt("database_reload", 45)

	go util.ContextTick(ctx, time.Duration(interval)*time.Second, g.Reload)
}

// ReloadUsers refreshes the passkey table. Existing user objects are
// updated in place so that references held by in-flight requests keep
// observing fresh counters.
func (g *Gate) ReloadUsers() {
	g.ApplyUsers(g.db.LoadUsers())
}

// ApplyUsers merges user rows into the passkey table.
func (g *Gate) ApplyUsers(rows []database.UserRow) {
	g.writeMutex.Lock()
	defer g.writeMutex.Unlock()

	old := *g.users.Load()
	next := make(map[string]*types.User, len(rows))

	for _, row := range rows {
		user, exists := old[row.Passkey]
		if !exists || user.ID.Load() != row.ID {
			user = &types.User{}
			user.ID.Store(row.ID)
		}

		user.Uploaded.Store(row.Uploaded)
		user.Downloaded.Store(row.Downloaded)
		user.SetBonusPoints(row.BonusPoints)
		user.HnrWarnings.Store(row.HnrWarnings)
		user.CanLeech.Store(row.CanLeech)
		user.SetRequiredRatio(row.RequiredRatio)

		next[row.Passkey] = user
	}

	g.users.Store(&next)
}

func (g *Gate) ReloadWhitelist() {
	g.ApplyWhitelist(g.db.LoadWhitelist())
}

// ApplyWhitelist replaces the client prefix table.
func (g *Gate) ApplyWhitelist(entries []types.WhitelistEntry) {
	g.writeMutex.Lock()
	defer g.writeMutex.Unlock()

	next := make(map[string]string, len(entries))

	for _, entry := range entries {
		next[entry.Prefix] = entry.Name
	}

	g.whitelist.Store(&next)
}

func (g *Gate) ReloadBans() {
	g.ApplyBans(g.db.LoadBans())
}

// ApplyBans replaces the ban table, parsing CIDR entries up front so the
// hot path only compares.
func (g *Gate) ApplyBans(rows []types.Ban) {
	g.writeMutex.Lock()
	defer g.writeMutex.Unlock()

	next := make([]ban, 0, len(rows))

	for _, row := range rows {
		b := ban{reason: row.Reason, expires: row.ExpiresAt}

		if strings.Contains(row.IP, "/") {
			prefix, err := netip.ParsePrefix(row.IP)
			if err != nil {
				continue
			}

			b.prefix = prefix.Masked()
			b.isCIDR = true
		} else {
			addr, err := netip.ParseAddr(row.IP)
			if err != nil {
				continue
			}

			b.addr = addr.Unmap()
		}

		next = append(next, b)
	}

	g.bans.Store(&next)
}

// User resolves a passkey. Misses mean "Invalid passkey".
func (g *Gate) User(passkey string) (*types.User, bool) {
	user, exists := (*g.users.Load())[passkey]
	return user, exists
}

// ClientApproved reports whether the first three bytes of the peer id
// form a registered prefix. An empty whitelist approves everything.
func (g *Gate) ClientApproved(peerID types.PeerID) bool {
	whitelist := *g.whitelist.Load()
	if len(whitelist) == 0 {
		return true
	}

	_, exists := whitelist[peerID.ClientPrefix(ClientPrefixLength)]

	return exists
}

// CheckBanned returns the ban reason for addr if any unexpired record
// matches it exactly or by CIDR containment.
func (g *Gate) CheckBanned(addr netip.Addr, now int64) (string, bool) {
	addr = addr.Unmap()

	for _, b := range *g.bans.Load() {
		if b.expires > 0 && b.expires <= now {
			continue
		}

		if b.isCIDR {
			if b.prefix.Contains(addr) {
				return b.reason, true
			}
		} else if b.addr == addr {
			return b.reason, true
		}
	}

	return "", false
}

func (g *Gate) UserCount() int {
	return len(*g.users.Load())
}

func (g *Gate) WhitelistCount() int {
	return len(*g.whitelist.Load())
}

func (g *Gate) BanCount() int {
	return len(*g.bans.Load())
}
