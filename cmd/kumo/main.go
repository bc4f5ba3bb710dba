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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"kumo/bonus"
	"kumo/config"
	"kumo/database"
	"kumo/gate"
	"kumo/hnr"
	"kumo/ratelimit"
	"kumo/server"
	"kumo/stats"
	"kumo/storage"
	"kumo/swarm"
	"kumo/udp"
	"kumo/verifier"
)

var (
	pprof string
	help  bool
)

// Provided at compile-time
var (
	BuildDate    = "0000-00-00T00:00:00+0000"
	BuildVersion = "development"
)

func init() {
	flag.StringVar(&pprof, "P", "", "Starts special pprof debug server on specified addr")
	flag.BoolVar(&help, "h", false, "Shows this help dialog")
}

func openPeerStore() storage.PeerStore {
	backend, _ := config.Section("peer_storage").Get("backend", "memory")

	switch backend {
	case "redis":
		section := config.Section("peer_storage")

		url, _ := section.Get("redis_url", "redis://localhost:6379")
		connectTimeout, _ := section.GetInt("connect_timeout", 5)

		return storage.NewRedis(url, time.Duration(connectTimeout)*time.Second)
	case "memory":
		return storage.NewMemory()
	default:
		slog.Error("unknown peer storage backend", "backend", backend)
		os.Exit(1)

		return nil
	}
}

func main() {
	fmt.Printf("kumo, ver=%s date=%s runtime=%s, cpus=%d\n\n",
		BuildVersion, BuildDate, runtime.Version(), runtime.GOMAXPROCS(0))

	flag.Parse()

	if help {
		fmt.Printf("Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()

		return
	}

	// Reconfigure logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if len(pprof) > 0 {
		// Both are disabled by default; sample 1% of events
		runtime.SetMutexProfileFraction(100)
		runtime.SetBlockProfileRate(100)

		go func() {
			l, err := net.Listen("tcp", pprof)
			if err != nil {
				slog.Error("failed to start special pprof debug server", "err", err)
				return
			}

			//nolint:gosec
			s := &http.Server{
				Handler: http.DefaultServeMux,
			}

			slog.Warn("started special pprof debug server", "addr", l.Addr())

			_ = s.Serve(l)
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	db := &database.Database{}
	db.Init()

	store := openPeerStore()

	g := gate.New(db)
	g.Reload()
	g.Start(ctx)

	limiter := ratelimit.NewFromConfig()
	limiter.Start(ctx)

	v := verifier.NewFromConfig()
	v.Start(ctx)

	buffer := stats.NewBuffer()

	registry := swarm.NewRegistry(db, store, buffer, v)
	registry.Start(ctx)

	collector := stats.NewCollector(buffer, db)
	collector.Start(ctx)

	detector := hnr.NewFromConfig(db, g.ReloadUsers)
	detector.Start(ctx)

	calculator := bonus.NewFromConfig(db, store, registry.Hashes)
	calculator.Start(ctx)

	httpServer := server.New(server.Deps{
		DB:        db,
		Gate:      g,
		Registry:  registry,
		Store:     store,
		Buffer:    buffer,
		Collector: collector,
		Limiter:   limiter,
		Verifier:  v,
		Hnr:       detector,
		Bonus:     calculator,
	})

	udpServer := udp.NewFromConfig(g, limiter, registry)

	go func() {
		if err := udpServer.Start(ctx); err != nil {
			slog.Error("udp server failed", "err", err)
		}
	}()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c

		slog.Info("caught interrupt, shutting down...")

		httpServer.Stop()
		registry.Stop()
		cancel()
		collector.Flush()
		db.Terminate()

		slog.Info("shutdown complete")
		os.Exit(0)
	}()

	slog.Info("starting main server loop...")

	if err := httpServer.Start(); err != nil {
		slog.Error("http server failed", "err", err)
		os.Exit(1)
	}

	select {}
}
