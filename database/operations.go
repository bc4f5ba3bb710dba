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
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"kumo/database/types"
)

var (
	// ErrTorrentNotFound is returned when the torrent whitelist is
	// enforced and the announced info_hash has no row.
	ErrTorrentNotFound = errors.New("torrent not found")

	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientPoints = errors.New("insufficient bonus points")
	ErrDuplicateBan       = errors.New("ban already exists")
)

const mysqlErrDuplicateEntry = 1062

// GetTorrent fetches the torrent row for an info_hash.
func (db *Database) GetTorrent(h types.TorrentHash) (*TorrentRow, error) {
	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	return db.selectTorrentLocked(h)
}

func (db *Database) selectTorrentLocked(h types.TorrentHash) (*TorrentRow, error) {
	var (
		row            TorrentRow
		freeleechUntil *int64
	)

	err := db.selectTorrentStmt.QueryRow(h).Scan(&row.ID, &row.Seeders, &row.Leechers,
		&row.Snatched, &row.Freeleech, &freeleechUntil, &row.UpMultiplier, &row.DownMultiplier)
	if err == sql.ErrNoRows {
		return nil, ErrTorrentNotFound
	} else if err != nil {
		return nil, fmt.Errorf("select torrent: %w", err)
	}

	row.InfoHash = h

	if freeleechUntil != nil {
		row.FreeleechUntil = *freeleechUntil
	}

	return &row, nil
}

// GetOrInsertTorrent auto-registers an unknown info_hash. Two nodes (or
// two goroutines) racing on the unique key both end up with the winner's
// row.
func (db *Database) GetOrInsertTorrent(h types.TorrentHash) (*TorrentRow, error) {
	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	row, err := db.selectTorrentLocked(h)
	if err == nil {
		return row, nil
	} else if err != ErrTorrentNotFound {
		return nil, err
	}

	if _, err = db.insertTorrentStmt.Exec(h); err != nil {
		var merr *mysql.MySQLError
		if !errors.As(err, &merr) || merr.Number != mysqlErrDuplicateEntry {
			return nil, fmt.Errorf("insert torrent: %w", err)
		}
		// Lost the registration race; the row exists now
	}

	return db.selectTorrentLocked(h)
}

// SelectHnrCandidates returns snatches past the grace period with too
// little seedtime that are not yet marked.
func (db *Database) SelectHnrCandidates(completedBefore, minSeedtime int64) ([]types.UserTorrentPair, error) {
	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	rows, err := db.hnrSelectStmt.Query(completedBefore, minSeedtime)
	if err != nil {
		return nil, fmt.Errorf("select hnr candidates: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var pairs []types.UserTorrentPair

	for rows.Next() {
		var pair types.UserTorrentPair

		if err = rows.Scan(&pair.UserID, &pair.TorrentID); err != nil {
			return nil, fmt.Errorf("scan hnr candidate: %w", err)
		}

		pairs = append(pairs, pair)
	}

	return pairs, rows.Err()
}

func (db *Database) MarkHnr(pair types.UserTorrentPair) {
	db.mainConn.mutex.Lock()
	db.mainConn.execute(db.hnrMarkStmt, pair.UserID, pair.TorrentID)
	db.mainConn.mutex.Unlock()
}

// ApplyHnrWarnings adds count warnings to a user and revokes leeching
// once the stored total reaches maxWarnings.
func (db *Database) ApplyHnrWarnings(userID uint32, count int, maxWarnings int) {
	db.mainConn.mutex.Lock()
	db.mainConn.execute(db.hnrWarnStmt, count, maxWarnings, userID)
	db.mainConn.mutex.Unlock()
}

func (db *Database) ClearHnrWarnings(userID uint32) {
	db.mainConn.mutex.Lock()
	db.mainConn.execute(db.hnrClearStmt, userID)
	db.mainConn.mutex.Unlock()
}

// ApplyBonusPoints credits accrued seeding points in one batched upsert.
func (db *Database) ApplyBonusPoints(points map[uint32]float64) {
	if len(points) == 0 {
		return
	}

	query := db.bufferPool.Take()
	defer db.bufferPool.Give(query)

	query.WriteString("INSERT IGNORE INTO users (ID, BonusPoints) VALUES ")

	first := true

	for userID, pts := range points {
		if !first {
			query.WriteRune(',')
		}

		first = false

		fmt.Fprintf(query, "(%d,%f)", userID, pts)
	}

	query.WriteString(" ON DUPLICATE KEY UPDATE BonusPoints = BonusPoints + VALUES(BonusPoints)")

	db.mainConn.mutex.Lock()
	db.mainConn.exec(query)
	db.mainConn.mutex.Unlock()
}

// RedeemBonusPoints exchanges points for synthetic upload credit at
// bytesPerPoint. The guarded UPDATE makes the check-and-decrement atomic.
func (db *Database) RedeemBonusPoints(userID uint32, points float64, bytesPerPoint uint64) error {
	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	var current float64

	err := db.bonusReadStmt.QueryRow(userID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrUserNotFound
	} else if err != nil {
		return fmt.Errorf("read bonus points: %w", err)
	}

	if current < points {
		return ErrInsufficientPoints
	}

	credit := uint64(points * float64(bytesPerPoint))

	result, err := db.bonusRedeemStmt.Exec(points, credit, userID, points)
	if err != nil {
		return fmt.Errorf("redeem bonus points: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		// Balance changed between read and update
		return ErrInsufficientPoints
	}

	return nil
}

func (db *Database) InsertBan(ip, reason string, expiresAt int64) error {
	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	if _, err := db.insertBanStmt.Exec(ip, reason, expiresAt); err != nil {
		var merr *mysql.MySQLError
		if errors.As(err, &merr) && merr.Number == mysqlErrDuplicateEntry {
			return ErrDuplicateBan
		}

		return fmt.Errorf("insert ban: %w", err)
	}

	return nil
}

func (db *Database) DeleteBan(ip string) {
	db.mainConn.mutex.Lock()
	db.mainConn.execute(db.deleteBanStmt, ip)
	db.mainConn.mutex.Unlock()
}

// CleanupExpiredBans drops bans whose expiry has passed.
func (db *Database) CleanupExpiredBans(now int64) int64 {
	db.mainConn.mutex.Lock()
	defer db.mainConn.mutex.Unlock()

	result := db.mainConn.execute(db.cleanupBansStmt, now)
	if result == nil {
		return 0
	}

	removed, _ := result.RowsAffected()

	return removed
}

func (db *Database) InsertWhitelistEntry(prefix, name string) {
	db.mainConn.mutex.Lock()
	db.mainConn.execute(db.insertWhitelistStmt, prefix, name)
	db.mainConn.mutex.Unlock()
}

func (db *Database) DeleteWhitelistEntry(prefix string) {
	db.mainConn.mutex.Lock()
	db.mainConn.execute(db.deleteWhitelistStmt, prefix)
	db.mainConn.mutex.Unlock()
}
