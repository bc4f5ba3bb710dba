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

// Package server is the HTTP front: announce, scrape, the admin API
// and the observability endpoints, all on one fasthttp listener.
package server

import (
	"bytes"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"kumo/bonus"
	"kumo/collectors"
	"kumo/config"
	"kumo/database"
	"kumo/database/types"
	"kumo/gate"
	"kumo/hnr"
	"kumo/ratelimit"
	"kumo/stats"
	"kumo/storage"
	"kumo/swarm"
	"kumo/util"
	"kumo/verifier"
)

type Server struct {
	db        *database.Database
	gate      *gate.Gate
	registry  *swarm.Registry
	store     storage.PeerStore
	buffer    *stats.Buffer
	collector *stats.Collector
	limiter   *ratelimit.Limiter
	verifier  *verifier.Verifier
	hnr       *hnr.Detector
	bonus     *bonus.Calculator

	bufferPool *util.BufferPool
	requests   atomic.Uint64
	startTime  time.Time

	normalRegisterer prometheus.Registerer
	normalCollector  *collectors.NormalCollector
	adminCollector   *collectors.AdminCollector

	httpServer *fasthttp.Server
}

// Deps carries the long-lived components the server fronts.
type Deps struct {
	DB        *database.Database
	Gate      *gate.Gate
	Registry  *swarm.Registry
	Store     storage.PeerStore
	Buffer    *stats.Buffer
	Collector *stats.Collector
	Limiter   *ratelimit.Limiter
	Verifier  *verifier.Verifier
	Hnr       *hnr.Detector
	Bonus     *bonus.Calculator
}

func New(deps Deps) *Server {
	s := &Server{
		db:         deps.DB,
		gate:       deps.Gate,
		registry:   deps.Registry,
		store:      deps.Store,
		buffer:     deps.Buffer,
		collector:  deps.Collector,
		limiter:    deps.Limiter,
		verifier:   deps.Verifier,
		hnr:        deps.Hnr,
		bonus:      deps.Bonus,
		bufferPool: util.NewBufferPool(512),
		startTime:  time.Now(),
	}

	s.normalRegisterer = prometheus.NewRegistry()
	s.normalCollector = collectors.NewNormalCollector()
	s.normalRegisterer.MustRegister(s.normalCollector)

	// Register additional metrics for DefaultGatherer
	s.adminCollector = collectors.NewAdminCollector()
	prometheus.MustRegister(s.adminCollector)

	return s
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	section := config.Section("http")

	addr, _ := section.Get("addr", ":34000")
	readTimeout, _ := section.GetInt("read_timeout", 2)
	writeTimeout, _ := section.GetInt("write_timeout", 2)

	s.httpServer = &fasthttp.Server{
		Handler:      s.handleRequest,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
		Name:         "kumo",
	}

	slog.Info("accepting connections", "addr", addr)

	return s.httpServer.ListenAndServe(addr)
}

// Stop drains in-flight requests and returns once the listener closed.
func (s *Server) Stop() {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
	}
}

func (s *Server) handleRequest(ctx *fasthttp.RequestCtx) {
	buf := s.bufferPool.Take()
	defer s.bufferPool.Give(buf)

	defer func() {
		if err := recover(); err != nil {
			slog.Error("panic serving request", "error", err, "uri", ctx.URI().String())
			debug.PrintStack()
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		}
	}()

	// Handlers serving JSON override this
	ctx.SetContentType("text/plain")

	status := s.route(ctx, buf)

	ctx.SetStatusCode(status)
	_, _ = ctx.Write(buf.Bytes())

	s.requests.Add(1)
}

func (s *Server) route(ctx *fasthttp.RequestCtx, buf *bytes.Buffer) int {
	path := strings.Trim(string(ctx.Path()), "/")
	if path == "" {
		return fasthttp.StatusNotFound
	}

	segments := strings.Split(path, "/")

	switch segments[0] {
	case "health":
		return s.alive(ctx, buf)
	case "stats":
		return s.statsJSON(ctx, buf)
	case "metrics":
		return s.metrics(string(ctx.Request.Header.Peek("Authorization")), buf)
	case "admin":
		return s.admin(ctx, segments[1:], buf)
	}

	// Everything else is /{passkey}/{action}
	if len(segments) != 2 {
		return fasthttp.StatusNotFound
	}

	passkey, action := segments[0], segments[1]

	if len(passkey) != types.PasskeySize {
		failure("Passkey required", buf)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	switch action {
	case "announce":
		return s.announce(ctx, passkey, buf)
	case "scrape":
		if enabled, _ := config.GetBool("scrape", true); !enabled {
			return fasthttp.StatusNotFound
		}

		return s.scrape(ctx, passkey, buf)
	}

	return fasthttp.StatusNotFound
}
