// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is C7: a stateless HTTP server exposing describe, hash-stream and
// block read/write operations against any path under its reach. It holds
// no state across requests besides the default Concurrency applied to its
// own hash-stream, its routing tables and its Prometheus metrics.
type Server struct {
	Concurrency int
	Log         Logger

	router   *chi.Mux
	registry *prometheus.Registry

	hashWorkersGauge prometheus.Gauge
	blocksServed     prometheus.Counter
	bytesServed      prometheus.Counter
}

// NewServer builds a Server with its routes mounted. concurrency is the
// server's default hash-stream parallelism (§4.7); a hash request that
// carries its own positive concurrency query parameter overrides it.
//
// Each Server carries its own prometheus.Registry rather than registering
// into the global default registerer, so embedding pdiffcopy (or starting
// several Servers in one process, as the tests do) never hits promauto's
// "duplicate metrics collector registration" panic.
func NewServer(concurrency int, log Logger) *Server {
	if log == nil {
		log = DiscardLogger()
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	s := &Server{
		Concurrency: concurrency,
		Log:         log,
		router:      chi.NewRouter(),
		registry:    registry,
		hashWorkersGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdiffcopy_server_hash_workers_active",
			Help: "Number of goroutines currently hashing blocks for in-flight requests.",
		}),
		blocksServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pdiffcopy_server_blocks_served_total",
			Help: "Total number of block read/write operations served.",
		}),
		bytesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pdiffcopy_server_bytes_served_total",
			Help: "Total number of block bytes served (read + write).",
		}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/info", s.handleInfo)
	s.router.Get("/hashes", s.handleHashes)
	s.router.Get("/block", s.handleGetBlock)
	s.router.Put("/block", s.handlePutBlock)
	s.router.Post("/block", s.handlePutBlock)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	info, err := statPath(path)
	if err != nil {
		s.Log.WithError(err).WithField("path", path).Debug("info: not found")
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Pdiffcopy-Size", strconv.FormatInt(info.Size(), 10))
	_ = json.NewEncoder(w).Encode(infoResponse{Size: info.Size()})
}

func (s *Server) handleHashes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	path := q.Get("path")

	info, err := statPath(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	blockSize, err := strconv.ParseInt(q.Get("block_size"), 10, 64)
	if err != nil || blockSize <= 0 {
		http.Error(w, "invalid block_size", http.StatusBadRequest)
		return
	}

	methodName := q.Get("method")
	if _, ok := LookupHash(methodName); !ok {
		http.Error(w, "unknown hash method: "+methodName, http.StatusUnprocessableEntity)
		return
	}

	concurrency := s.Concurrency
	if n, err := strconv.Atoi(q.Get("concurrency")); err == nil && n > 0 {
		concurrency = n
	}

	params := Params{BlockSize: blockSize, HashMethod: methodName, Concurrency: concurrency}

	w.Header().Set("Content-Type", "application/octet-stream")
	flusher, canFlush := w.(http.Flusher)

	s.hashWorkersGauge.Add(float64(params.effectiveConcurrency()))
	defer s.hashWorkersGauge.Add(-float64(params.effectiveConcurrency()))

	stream, errc := LocalHashStream(ctx, path, info.Size(), params)
	for entry := range stream {
		if err := writeHashEntry(w, entry); err != nil {
			s.Log.WithError(err).Warn("hashes: client disconnected mid-stream")
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
	if err := <-errc; err != nil {
		s.Log.WithError(err).WithField("path", path).Error("hashes: pipeline failed")
	}
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	offset, oerr := strconv.ParseInt(q.Get("offset"), 10, 64)
	length, lerr := strconv.ParseInt(q.Get("length"), 10, 64)
	if oerr != nil || lerr != nil || offset < 0 || length < 0 {
		http.Error(w, "invalid offset/length", http.StatusBadRequest)
		return
	}

	lf, err := OpenLocalFile(path, false)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer lf.Close()

	if offset+length > lf.Size {
		http.Error(w, "range out of bounds", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	data, err := lf.ReadBlock(offset, length)
	if err != nil {
		s.Log.WithError(err).Error("block: read failed")
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}

	s.blocksServed.Inc()
	s.bytesServed.Add(float64(len(data)))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handlePutBlock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	offset, err := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err != nil || offset < 0 {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}

	lf, err := OpenLocalFile(path, true)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer lf.Close()

	length := r.ContentLength
	if length < 0 {
		http.Error(w, "Content-Length required", http.StatusBadRequest)
		return
	}

	data, err := readExactly(r.Body, length)
	if err != nil {
		http.Error(w, "truncated body", http.StatusBadRequest)
		return
	}

	if err := lf.WriteBlock(offset, data); err != nil {
		s.Log.WithError(err).Error("block: write failed")
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}

	s.blocksServed.Inc()
	s.bytesServed.Add(float64(len(data)))

	w.WriteHeader(http.StatusNoContent)
}
