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
	"log/slog"
	"time"

	"kumo/collectors"
	"kumo/database/types"
)

// Row snapshots handed to the gate cache and the swarm registry; they
// merge these into their atomic in-memory views.

type UserRow struct {
	ID            uint32
	Passkey       string
	Uploaded      uint64
	Downloaded    uint64
	BonusPoints   float64
	HnrWarnings   uint32
	CanLeech      bool
	RequiredRatio float64
}

type TorrentRow struct {
	ID             uint32
	InfoHash       types.TorrentHash
	Seeders        uint32
	Leechers       uint32
	Snatched       uint32
	Freeleech      bool
	FreeleechUntil int64
	UpMultiplier   float64
	DownMultiplier float64
}

func (db *Database) LoadUsers() []UserRow {
	var users []UserRow

	start := time.Now()
	defer func() { collectors.UpdateReloadTime("users", time.Since(start)) }()

	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	rows := db.mainConn.query(db.loadUsersStmt)
	if rows == nil {
		return nil
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var row UserRow

		if err := rows.Scan(&row.ID, &row.Passkey, &row.Uploaded, &row.Downloaded,
			&row.BonusPoints, &row.HnrWarnings, &row.CanLeech, &row.RequiredRatio); err != nil {
			slog.Error("error scanning user row", "err", err)
			continue
		}

		if len(row.Passkey) != types.PasskeySize {
			slog.Warn("skipping user with malformed passkey", "id", row.ID)
			continue
		}

		users = append(users, row)
	}

	return users
}

func (db *Database) LoadTorrents() []TorrentRow {
	var torrents []TorrentRow

	start := time.Now()
	defer func() { collectors.UpdateReloadTime("torrents", time.Since(start)) }()

	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	rows := db.mainConn.query(db.loadTorrentsStmt)
	if rows == nil {
		return nil
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			row            TorrentRow
			freeleechUntil *int64
		)

		if err := rows.Scan(&row.ID, &row.InfoHash, &row.Seeders, &row.Leechers,
			&row.Snatched, &row.Freeleech, &freeleechUntil,
			&row.UpMultiplier, &row.DownMultiplier); err != nil {
			slog.Error("error scanning torrent row", "err", err)
			continue
		}

		if freeleechUntil != nil {
			row.FreeleechUntil = *freeleechUntil
		}

		torrents = append(torrents, row)
	}

	return torrents
}

func (db *Database) LoadWhitelist() []types.WhitelistEntry {
	var entries []types.WhitelistEntry

	start := time.Now()
	defer func() { collectors.UpdateReloadTime("whitelist", time.Since(start)) }()

	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	rows := db.mainConn.query(db.loadWhitelistStmt)
	if rows == nil {
		return nil
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var entry types.WhitelistEntry

		if err := rows.Scan(&entry.Prefix, &entry.Name); err != nil {
			slog.Error("error scanning whitelist row", "err", err)
			continue
		}

		entries = append(entries, entry)
	}

	return entries
}

func (db *Database) LoadBans() []types.Ban {
	var bans []types.Ban

	start := time.Now()
	defer func() { collectors.UpdateReloadTime("bans", time.Since(start)) }()

	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	rows := db.mainConn.query(db.loadBansStmt)
	if rows == nil {
		return nil
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			ban       types.Ban
			expiresAt *int64
		)

		if err := rows.Scan(&ban.ID, &ban.IP, &ban.Reason, &expiresAt); err != nil {
			slog.Error("error scanning ban row", "err", err)
			continue
		}

		if expiresAt != nil {
			ban.ExpiresAt = *expiresAt
		}

		bans = append(bans, ban)
	}

	return bans
}
