package http

import (
	"context"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/scoresync"
	"github.com/mind-engage/certsync/internal/scoring"
)

// Syncer is satisfied by *scoresync.Service.
type Syncer interface {
	SyncRequest(ctx context.Context, requestID, courseID string, mapping *scoring.MappingConfig) scoresync.SyncResult
	SyncBatch(ctx context.Context, ids []string, courseID string, mapping *scoring.MappingConfig, progress scoresync.ProgressFunc) scoresync.BatchResult
	SyncGroup(ctx context.Context, g certreq.Group, courseID string, mapping *scoring.MappingConfig, progress scoresync.ProgressFunc) scoresync.BatchResult
}

type syncBody struct {
	CourseID string                 `json:"course_id" validate:"omitempty,max=64"`
	Mapping  *scoring.MappingConfig `json:"mapping"`
}

type batchBody struct {
	IDs      []string               `json:"ids" validate:"required,min=1,max=1000,dive,required,max=64"`
	CourseID string                 `json:"course_id" validate:"omitempty,max=64"`
	Mapping  *scoring.MappingConfig `json:"mapping"`
}

func checkMapping(m *scoring.MappingConfig) error {
	if m == nil {
		return nil
	}
	return m.Validate()
}

// POST /certificate-requests/{id}/sync  { "course_id"?, "mapping"? }
// A failed sync is still 200; callers read "success" and "error".
func SyncRequestHandler(s Syncer) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body syncBody
		if err := decodeBody(r, &body); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		if err := checkMapping(body.Mapping); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		res := s.SyncRequest(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"), body.CourseID, body.Mapping)
		respondJSON(w, nethttp.StatusOK, res)
	}
}

// POST /sync/batch  { "ids": [...], "course_id"?, "mapping"? }
func SyncBatchHandler(s Syncer) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body batchBody
		if err := decodeBody(r, &body); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		if err := checkMapping(body.Mapping); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		// batches run to completion even if the client goes away
		res := s.SyncBatch(context.WithoutCancel(r.Context()), body.IDs, body.CourseID, body.Mapping, nil)
		respondJSON(w, nethttp.StatusOK, res)
	}
}

// POST /batches/{id}/sync and /rosters/{id}/sync
func SyncGroupHandler(s Syncer, kind certreq.GroupKind) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body syncBody
		if err := decodeBody(r, &body); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		if err := checkMapping(body.Mapping); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		g := certreq.Group{Kind: kind, ID: chi.URLParam(r, "id")}
		res := s.SyncGroup(context.WithoutCancel(r.Context()), g, body.CourseID, body.Mapping, nil)
		respondJSON(w, nethttp.StatusOK, res)
	}
}
