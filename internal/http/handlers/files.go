package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"photoflow/internal/queue"
	"photoflow/internal/storage"
)

const defaultMaxUpload = 25 << 20

// GetFile serves an object of the filesystem store through a signed URL.
func (a *App) GetFile(w http.ResponseWriter, r *http.Request) {
	key, ok := a.verifyFile(w, r)
	if !ok {
		return
	}
	obj, err := a.Files.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "object not found")
			return
		}
		a.fail(w, r, err)
		return
	}
	ct := obj.ContentType
	if ct == "" {
		ct = http.DetectContentType(obj.Body)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Body)
}

// PutFile accepts an upload to a signed URL. Uploads under uploads/ are
// announced to the worker queue when a publisher is configured.
func (a *App) PutFile(w http.ResponseWriter, r *http.Request) {
	key, ok := a.verifyFile(w, r)
	if !ok {
		return
	}
	limit := a.MaxUpload
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	if int64(len(data)) > limit {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}
	ct := r.Header.Get("Content-Type")
	if err := a.Files.Put(r.Context(), key, data, storage.PutOptions{ContentType: ct}); err != nil {
		a.fail(w, r, err)
		return
	}
	if a.Uploads != nil && strings.HasPrefix(key, storage.UploadPrefix+"/") {
		evt := queue.UploadEvent{Bucket: a.Files.Bucket(), Key: key}
		if err := a.Uploads.Publish(r.Context(), evt); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("http: announce upload failed")
			a.error(w, http.StatusBadGateway, "enqueue_failed", "upload stored but could not be queued")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (a *App) verifyFile(w http.ResponseWriter, r *http.Request) (string, bool) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "file routes are disabled")
		return "", false
	}
	key := chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := a.Files.Verify(r.Method, key, q.Get("expires"), q.Get("signature")); err != nil {
		a.error(w, http.StatusForbidden, "forbidden", "invalid or expired signature")
		return "", false
	}
	return key, true
}
