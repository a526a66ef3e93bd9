package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"photoflow/internal/domain"
	"photoflow/internal/service"
)

type createJobRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Prompt      string `json:"prompt"`
}

type uploadResponse struct {
	Job       jobResponse `json:"job"`
	UploadURL string      `json:"uploadUrl"`
	Method    string      `json:"method"`
	Headers   uploadHdrs  `json:"headers"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type uploadHdrs struct {
	ContentType string `json:"Content-Type"`
}

type jobResponse struct {
	JobID                string     `json:"jobId"`
	UserID               string     `json:"userId"`
	Status               string     `json:"status"`
	FileName             string     `json:"fileName"`
	Prompt               string     `json:"prompt,omitempty"`
	BatchJobID           string     `json:"batchJobId,omitempty"`
	UploadObjectKey      string     `json:"uploadObjectKey"`
	FinalObjectKey       string     `json:"finalObjectKey,omitempty"`
	Error                string     `json:"error,omitempty"`
	DownloadURL          string     `json:"downloadUrl,omitempty"`
	DownloadURLExpiresAt *time.Time `json:"downloadUrlExpiresAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	ExpiresAt            time.Time  `json:"expiresAt"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		JobID:           job.ID,
		UserID:          job.UserID,
		Status:          job.Status.String(),
		FileName:        job.FileName,
		Prompt:          job.Prompt,
		BatchJobID:      job.BatchJobID,
		UploadObjectKey: job.UploadObjectKey,
		FinalObjectKey:  job.FinalObjectKey,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		ExpiresAt:       job.ExpiresAt,
	}
}

func toJobView(v *service.JobView) jobResponse {
	resp := toJobResponse(v.Job)
	if v.DownloadURL != "" {
		resp.DownloadURL = v.DownloadURL
		exp := v.ExpiresAt
		resp.DownloadURLExpiresAt = &exp
	}
	return resp
}

func toUploadResponse(t *service.UploadTicket) uploadResponse {
	return uploadResponse{
		Job:       toJobResponse(t.Job),
		UploadURL: t.UploadURL,
		Method:    t.UploadMethod,
		Headers:   uploadHdrs{ContentType: t.ContentType},
		ExpiresAt: t.ExpiresAt,
	}
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createJobRequest
	if !a.decode(w, r, &req) {
		return
	}
	ticket, err := a.Service.CreateJob(r.Context(), service.CreateJobRequest{
		UserID:      userID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Prompt:      req.Prompt,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toUploadResponse(ticket))
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	view, err := a.Service.GetJob(r.Context(), userID, chi.URLParam(r, "jobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toJobView(view))
}
