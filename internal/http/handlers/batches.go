package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"photoflow/internal/domain"
	"photoflow/internal/service"
	"photoflow/pkg/zip"
)

type createBatchRequest struct {
	SharedPrompt string             `json:"sharedPrompt"`
	Files        []createJobRequest `json:"files"`
}

type batchResponse struct {
	BatchJobID     string        `json:"batchJobId"`
	UserID         string        `json:"userId"`
	Status         string        `json:"status"`
	SharedPrompt   string        `json:"sharedPrompt,omitempty"`
	TotalCount     int           `json:"totalCount"`
	CompletedCount int           `json:"completedCount"`
	JobIDs         []string      `json:"jobIds"`
	Error          string        `json:"error,omitempty"`
	Jobs           []jobResponse `json:"jobs,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}

type createBatchResponse struct {
	Batch   batchResponse    `json:"batch"`
	Uploads []uploadResponse `json:"uploads"`
}

func toBatchResponse(b *domain.BatchJob) batchResponse {
	return batchResponse{
		BatchJobID:     b.ID,
		UserID:         b.UserID,
		Status:         b.Status.String(),
		SharedPrompt:   b.SharedPrompt,
		TotalCount:     b.TotalCount,
		CompletedCount: b.CompletedCount,
		JobIDs:         b.JobIDs,
		Error:          b.Error,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		ExpiresAt:      b.ExpiresAt,
	}
}

func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createBatchRequest
	if !a.decode(w, r, &req) {
		return
	}
	files := make([]service.BatchFile, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, service.BatchFile{FileName: f.FileName, ContentType: f.ContentType, Prompt: f.Prompt})
	}
	ticket, err := a.Service.CreateBatch(r.Context(), service.CreateBatchRequest{
		UserID:       userID,
		SharedPrompt: req.SharedPrompt,
		Files:        files,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := createBatchResponse{Batch: toBatchResponse(ticket.Batch), Uploads: make([]uploadResponse, 0, len(ticket.Uploads))}
	for _, u := range ticket.Uploads {
		resp.Uploads = append(resp.Uploads, toUploadResponse(u))
	}
	a.json(w, http.StatusCreated, resp)
}

func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	view, err := a.Service.GetBatch(r.Context(), userID, chi.URLParam(r, "batchJobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := toBatchResponse(view.Batch)
	resp.Jobs = make([]jobResponse, 0, len(view.Jobs))
	for _, j := range view.Jobs {
		resp.Jobs = append(resp.Jobs, toJobView(j))
	}
	a.json(w, http.StatusOK, resp)
}

// GetBatchArchive streams the completed photos of a batch as a zip file.
func (a *App) GetBatchArchive(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	batchID := chi.URLParam(r, "batchJobId")
	entries, err := a.Service.BatchArchive(r.Context(), userID, batchID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch-"+batchID+".zip"))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, entries); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("batch_id", batchID).Msg("http: archive stream failed")
	}
}
