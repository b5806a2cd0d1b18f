// Package service implements an anchoring service over HTTP.
//
// The protocol has two requests:
//
//	GET /anchor/versions/{anchorId}
//	PUT /anchor/add/{anchorId}
//
// The first responds with the JSON array of version pointers for the anchor, oldest first.
// The second takes a JSON record
// (see anchoring.Record)
// and responds with 201 if it was appended,
// or with 428 (Precondition Required) if its "last" pointer is not the current head.
package service

import (
	"encoding/json"
	stderrs "errors"
	"log"
	"net/http"

	"github.com/skutner/anchoring"
)

// MaxRecordSize is the largest request body accepted by the add request.
const MaxRecordSize = 1 << 20

var _ http.Handler = &Server{}

// Server is an http.Handler serving the anchoring protocol from a store.
type Server struct {
	s   anchoring.Store
	mux *http.ServeMux
}

// NewServer produces a new Server backed by s.
func NewServer(s anchoring.Store) *Server {
	srv := &Server{s: s, mux: http.NewServeMux()}
	srv.mux.HandleFunc("GET /anchor/versions/{id}", srv.versions)
	srv.mux.HandleFunc("PUT /anchor/add/{id}", srv.add)
	return srv
}

// ServeHTTP implements http.Handler.
func (srv *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	srv.mux.ServeHTTP(w, req)
}

func (srv *Server) versions(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	chain, err := srv.s.Versions(req.Context(), id)
	if err != nil {
		log.Printf("ERROR getting versions of %s: %s", id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if chain == nil {
		chain = anchoring.Chain{}
	}
	writeJSON(w, http.StatusOK, chain)
}

func (srv *Server) add(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	var rec anchoring.Record
	err := json.NewDecoder(http.MaxBytesReader(w, req.Body, MaxRecordSize)).Decode(&rec)
	if err != nil {
		http.Error(w, "decoding record: "+err.Error(), http.StatusBadRequest)
		return
	}
	if rec.New == "" {
		http.Error(w, `record has no "new" pointer`, http.StatusBadRequest)
		return
	}

	err = srv.s.Append(req.Context(), id, rec)
	if stderrs.Is(err, anchoring.ErrConflict) {
		http.Error(w, err.Error(), http.StatusPreconditionRequired)
		return
	}
	if err != nil {
		log.Printf("ERROR appending %s to %s: %s", rec.New, id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}
