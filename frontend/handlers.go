// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package frontend serves reconciled results to the rebaseline viewer
// and accepts baseline edits back from it.
package frontend

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/router"

	"rebaseline/results"
)

// Server wraps a results.Service snapshot behind HTTP endpoints. After
// a successful edit the snapshot is rebuilt, so subsequent reads see
// the updated baselines.
type Server struct {
	cfg      results.Config
	editable bool
	exported bool

	mu  sync.RWMutex
	svc *results.Service
}

// NewServer returns a Server around an already constructed snapshot.
func NewServer(svc *results.Service, cfg results.Config, editable, exported bool) *Server {
	return &Server{
		cfg:      cfg,
		editable: editable,
		exported: exported,
		svc:      svc,
	}
}

// Routes installs the server's handlers on a fresh router whose
// handlers inherit ctx.
func (s *Server) Routes(ctx context.Context) http.Handler {
	r := router.NewWithRootContext(ctx)
	base := router.NewMiddlewareChain()

	r.GET("/results/:type", base, s.getResultsHandler)
	r.POST("/edits", base, s.postEditsHandler)

	return r
}

func (s *Server) service() *results.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.svc
}

// getResultsHandler serves GET /results/:type?reload=N.
func (s *Server) getResultsHandler(ctx *router.Context) {
	c, w, r := ctx.Context, ctx.Writer, ctx.Request

	kind := results.ResultKind(ctx.Params.ByName("type"))

	var reload *int64
	if v := r.URL.Query().Get("reload"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "bad reload parameter", http.StatusBadRequest)
			return
		}
		reload = &n
	}

	pkg, err := s.service().PackagedResultsOfType(c, kind, reload, s.editable, s.exported)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(c, w, pkg)
}

// editRequest is the body of POST /edits.
type editRequest struct {
	Type          results.ResultKind      `json:"type"`
	DataToken     string                  `json:"dataToken"`
	Modifications []*results.Modification `json:"modifications"`
}

// postEditsHandler serves POST /edits. The request must carry the data
// token of the partition the editor was looking at; a stale token is
// rejected so edits never land on a dataset the editor never saw.
func (s *Server) postEditsHandler(ctx *router.Context) {
	c, w, r := ctx.Context, ctx.Writer, ctx.Request

	if !s.editable {
		http.Error(w, "this server does not accept edits", http.StatusForbidden)
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed edit request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = results.KindFailures
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	partition, err := s.svc.ResultsOfType(req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.DataToken != partition.DataToken() {
		http.Error(w, "results have changed since they were fetched; reload and retry",
			http.StatusPreconditionFailed)
		return
	}

	if err := s.svc.EditExpectations(c, req.Modifications); err != nil {
		logging.WithError(err).Errorf(c, "postEditsHandler: applying modifications")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The on-disk baselines moved; rebuild the snapshot so reads
	// reflect them. The old snapshot stays valid for in-flight reads.
	svc, err := results.NewService(c, s.cfg)
	if err != nil {
		logging.WithError(err).Errorf(c, "postEditsHandler: rebuilding snapshot")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.svc = svc

	w.WriteHeader(http.StatusOK)
}

func writeJSON(c context.Context, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WithError(err).Errorf(c, "writeJSON: encoding response")
	}
}
