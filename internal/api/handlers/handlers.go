// Package handlers implements the operator-facing HTTP API: queue
// listing, the approve/reject/edit/skip/upload-image/recover actions on
// a draft, publish pause/resume, and the health-strip summary.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/recovery"
	"github.com/NomadonaTrip/sophia/internal/scheduler"
	"github.com/NomadonaTrip/sophia/internal/store"
)

// Handlers holds the services every route depends on.
type Handlers struct {
	Store     store.Store
	Approval  *approval.Service
	Scheduler *scheduler.Scheduler
	Recovery  *recovery.Service
	Bus       *events.Bus

	// ImageDir is where uploaded images are written; served back out at
	// ImageBaseURL + filename.
	ImageDir     string
	ImageBaseURL string
}

// New wires a Handlers.
func New(s store.Store, approvalSvc *approval.Service, sched *scheduler.Scheduler, recoverySvc *recovery.Service, bus *events.Bus, imageDir, imageBaseURL string) *Handlers {
	return &Handlers{
		Store:        s,
		Approval:     approvalSvc,
		Scheduler:    sched,
		Recovery:     recoverySvc,
		Bus:          bus,
		ImageDir:     imageDir,
		ImageBaseURL: imageBaseURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
