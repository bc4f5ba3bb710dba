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

// Package database is the durable MySQL store. Counter writes arrive in
// batched flush channels (see flush.go); row loads and the admin-side
// mutations are prepared statements. Deadlocks are retried with
// progressive backoff, everything else is surfaced to the caller.
package database

import (
	"bytes"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"

	"kumo/collectors"
	"kumo/config"
	"kumo/util"
)

type Connection struct {
	sqlDb *sql.DB
	mutex sync.Mutex
}

type Database struct {
	userChannel     chan *bytes.Buffer
	torrentChannel  chan *bytes.Buffer
	snatchChannel   chan *bytes.Buffer
	seedtimeChannel chan seedtimeDelta

	loadUsersStmt     *sql.Stmt
	loadTorrentsStmt  *sql.Stmt
	loadWhitelistStmt *sql.Stmt
	loadBansStmt      *sql.Stmt

	selectTorrentStmt *sql.Stmt
	insertTorrentStmt *sql.Stmt

	updateSeedtimeStmt *sql.Stmt

	hnrSelectStmt *sql.Stmt
	hnrMarkStmt   *sql.Stmt
	hnrWarnStmt   *sql.Stmt
	hnrClearStmt  *sql.Stmt

	bonusRedeemStmt *sql.Stmt
	bonusReadStmt   *sql.Stmt

	insertBanStmt       *sql.Stmt
	deleteBanStmt       *sql.Stmt
	cleanupBansStmt     *sql.Stmt
	insertWhitelistStmt *sql.Stmt
	deleteWhitelistStmt *sql.Stmt

	mainConn *Connection

	bufferPool *util.BufferPool

	terminate atomic.Bool
	waitGroup sync.WaitGroup
}

var (
	deadlockWaitTime   int
	maxDeadlockRetries int
)

var defaultDsn = map[string]string{
	"username": "kumo",
	"password": "",
	"proto":    "tcp",
	"addr":     "127.0.0.1:3306",
	"database": "kumo",
}

func (db *Database) Init() {
	db.terminate.Store(false)

	slog.Info("opening database connection")

	db.mainConn = Open()

	// Update rows are short tuples; 128 bytes covers the widest one
	db.bufferPool = util.NewBufferPool(128)

	prepare := func(query string) *sql.Stmt {
		stmt, err := db.mainConn.sqlDb.Prepare(query)
		if err != nil {
			slog.Error("failed to prepare statement", "query", query, "err", err)
			os.Exit(1)
		}

		return stmt
	}

	db.loadUsersStmt = prepare(
		"SELECT ID, Passkey, Uploaded, Downloaded, BonusPoints, HnrWarnings, CanLeech, RequiredRatio " +
			"FROM users WHERE Enabled = 1")

	db.loadTorrentsStmt = prepare(
		"SELECT ID, InfoHash, Seeders, Leechers, Snatched, Freeleech, FreeleechUntil, " +
			"UpMultiplier, DownMultiplier FROM torrents")

	db.loadWhitelistStmt = prepare(
		"SELECT Prefix, Name FROM client_whitelist")

	db.loadBansStmt = prepare(
		"SELECT ID, IP, Reason, ExpiresAt FROM bans")

	db.selectTorrentStmt = prepare(
		"SELECT ID, Seeders, Leechers, Snatched, Freeleech, FreeleechUntil, " +
			"UpMultiplier, DownMultiplier FROM torrents WHERE InfoHash = ?")

	db.insertTorrentStmt = prepare(
		"INSERT INTO torrents (InfoHash, UpMultiplier, DownMultiplier) VALUES (?, 1.0, 1.0)")

	db.updateSeedtimeStmt = prepare(
		"UPDATE snatches SET Seedtime = Seedtime + ?, LastAnnounce = ? WHERE UserID = ? AND TorrentID = ?")

	db.hnrSelectStmt = prepare(
		"SELECT UserID, TorrentID FROM snatches WHERE CompletedAt < ? AND Seedtime < ? AND Hnr = 0")

	db.hnrMarkStmt = prepare(
		"UPDATE snatches SET Hnr = 1 WHERE UserID = ? AND TorrentID = ?")

	db.hnrWarnStmt = prepare(
		"UPDATE users SET HnrWarnings = HnrWarnings + ?, CanLeech = IF(HnrWarnings < ?, 1, 0) WHERE ID = ?")

	db.hnrClearStmt = prepare(
		"UPDATE users SET HnrWarnings = 0, CanLeech = 1 WHERE ID = ?")

	db.bonusReadStmt = prepare(
		"SELECT BonusPoints FROM users WHERE ID = ?")

	db.bonusRedeemStmt = prepare(
		"UPDATE users SET BonusPoints = BonusPoints - ?, Uploaded = Uploaded + ? " +
			"WHERE ID = ? AND BonusPoints >= ?")

	db.insertBanStmt = prepare(
		"INSERT INTO bans (IP, Reason, ExpiresAt) VALUES (?, ?, ?)")

	db.deleteBanStmt = prepare(
		"DELETE FROM bans WHERE IP = ?")

	db.cleanupBansStmt = prepare(
		"DELETE FROM bans WHERE ExpiresAt > 0 AND ExpiresAt < ?")

	db.insertWhitelistStmt = prepare(
		"INSERT INTO client_whitelist (Prefix, Name) VALUES (?, ?)")

	db.deleteWhitelistStmt = prepare(
		"DELETE FROM client_whitelist WHERE Prefix = ?")

	db.startFlushing()
}

func (db *Database) Terminate() {
	slog.Info("terminating database connection")

	db.terminate.Store(true)
	db.closeFlushChannels()

	go func() {
		time.Sleep(10 * time.Second)
		slog.Info("waiting for database flushing to finish, please be patient")
	}()

	db.waitGroup.Wait()
	db.mainConn.mutex.Lock()
	_ = db.mainConn.Close()
	db.mainConn.mutex.Unlock()
}

func Open() *Connection {
	databaseConfig := config.Section("database")
	deadlockWaitTime, _ = databaseConfig.GetInt("deadlock_pause", 1)
	maxDeadlockRetries, _ = databaseConfig.GetInt("deadlock_retries", 5)

	// DSN Format: username:password@protocol(address)/dbname?param=value
	// First try to load the DSN from environment. Useful for tests.
	databaseDsn := os.Getenv("DB_DSN")
	if databaseDsn == "" {
		dbUsername, _ := databaseConfig.Get("username", defaultDsn["username"])
		dbPassword, _ := databaseConfig.Get("password", defaultDsn["password"])
		dbProto, _ := databaseConfig.Get("proto", defaultDsn["proto"])
		dbAddr, _ := databaseConfig.Get("addr", defaultDsn["addr"])
		dbDatabase, _ := databaseConfig.Get("database", defaultDsn["database"])
		databaseDsn = fmt.Sprintf("%s:%s@%s(%s)/%s",
			dbUsername,
			dbPassword,
			dbProto,
			dbAddr,
			dbDatabase,
		)
	}

	sqlDb, err := sql.Open("mysql", databaseDsn)
	if err != nil {
		slog.Error("couldn't connect to database", "err", err)
		os.Exit(1)
	}

	if err = sqlDb.Ping(); err != nil {
		slog.Error("couldn't ping database", "err", err)
		os.Exit(1)
	}

	return &Connection{
		sqlDb: sqlDb,
	}
}

func (conn *Connection) Close() error {
	return conn.sqlDb.Close()
}

func (conn *Connection) query(stmt *sql.Stmt, args ...interface{}) *sql.Rows {
	rows, _ := perform(func() (interface{}, error) {
		return stmt.Query(args...)
	}).(*sql.Rows)

	return rows
}

func (conn *Connection) execute(stmt *sql.Stmt, args ...interface{}) sql.Result {
	result, _ := perform(func() (interface{}, error) {
		return stmt.Exec(args...)
	}).(sql.Result)

	return result
}

func (conn *Connection) exec(query *bytes.Buffer, args ...interface{}) sql.Result {
	result, _ := perform(func() (interface{}, error) {
		return conn.sqlDb.Exec(query.String(), args...)
	}).(sql.Result)

	return result
}

func perform(exec func() (interface{}, error)) (result interface{}) {
	var (
		err   error
		tries int
		wait  time.Duration
	)

	for tries = 1; tries <= maxDeadlockRetries; tries++ {
		result, err = exec()
		if err == nil {
			return
		}

		if merr, isMysqlError := err.(*mysql.MySQLError); isMysqlError {
			if merr.Number == 1213 || merr.Number == 1205 {
				wait = time.Duration(deadlockWaitTime*tries) * time.Second
				slog.Warn("deadlock found, retrying",
					"wait", wait.String(), "try", tries, "max", maxDeadlockRetries)

				if tries == 1 {
					collectors.IncrementDeadlockCount()
				}

				time.Sleep(wait)

				continue
			}

			slog.Error("sql error", "number", merr.Number, "message", merr.Message)
			collectors.IncrementSQLErrorCount()

			return
		}

		slog.Error("error executing sql", "err", err)

		return
	}

	slog.Error("deadlocked too many times, giving up", "tries", tries)

	return
}
