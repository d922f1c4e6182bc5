package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashguard/internal/database/models"
	"github.com/y0ug/hashguard/internal/dataset"
	"github.com/y0ug/hashguard/internal/lookup"
	"github.com/y0ug/hashguard/internal/prefixindex"
	"github.com/y0ug/hashguard/internal/verdict"
	"github.com/y0ug/hashguard/pkg/auth"
)

// handleRange answers GET /{dataset}/range/{prefix}. The prefix is never logged.
func (ws *WebServer) handleRange(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix := mux.Vars(r)["prefix"]

		result, err := ws.Lookup.CheckPrefix(name, prefix)
		switch {
		case errors.Is(err, prefixindex.ErrInvalidPrefix):
			auth.WriteErrorResponse(w, "Prefix must be 5 hexadecimal characters", http.StatusBadRequest)
			return
		case errors.Is(err, lookup.ErrDatasetUnavailable):
			w.Header().Set("Retry-After", "30")
			auth.WriteErrorResponse(w, "Dataset not loaded yet", http.StatusServiceUnavailable)
			return
		case err != nil:
			ws.Logger.WithError(err).WithField("dataset", name).Error("Range query failed")
			auth.WriteErrorResponse(w, "Failed to query dataset", http.StatusInternalServerError)
			return
		}

		candidates := result.Candidates
		if candidates == nil {
			candidates = []prefixindex.CandidateRecord{}
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		auth.WriteSuccessResponse(w, "Range retrieved successfully", models.PrefixResponse{
			Dataset:    name,
			Count:      result.Count,
			Candidates: candidates,
		})
	}
}

// handleGetStats handles the GET /stats endpoint.
func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	response := models.StatsResponse{
		Datasets: ws.Lookup.Stats(),
	}
	if ws.Entries != nil {
		response.ReputationEntries = ws.Entries.Len(r.Context())
	}
	auth.WriteSuccessResponse(w, "Stats retrieved successfully", response)
}

// handleCheckURL handles POST /urls/check with a JSON body and GET /urls/check?url=.
func (ws *WebServer) handleCheckURL(w http.ResponseWriter, r *http.Request) {
	var req models.URLCheckRequest

	if r.Method == http.MethodPost {
		defer r.Body.Close()
		body := http.MaxBytesReader(w, r.Body, 64<<10)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			ws.Logger.WithError(err).Debug("Invalid JSON payload")
			auth.WriteErrorResponse(w, "Invalid JSON payload", http.StatusBadRequest)
			return
		}
	} else {
		query := r.URL.Query()
		req.URL = query.Get("url")
		req.ForceRecheck, _ = strconv.ParseBool(query.Get("force_recheck"))
	}

	if req.URL == "" {
		auth.WriteErrorResponse(w, "URL field is required", http.StatusBadRequest)
		return
	}

	entry, err := ws.Evaluator.Evaluate(r.Context(), req.URL, verdict.Options{ForceRecheck: req.ForceRecheck})
	switch {
	case errors.Is(err, verdict.ErrInvalidURL):
		auth.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, context.Canceled):
		// The client went away; the computation carries on for other callers.
		ws.Logger.WithError(err).Debug("URL check abandoned by client")
		return
	case err != nil:
		ws.Logger.WithError(err).Error("URL evaluation failed")
		auth.WriteErrorResponse(w, "Failed to evaluate URL", http.StatusInternalServerError)
		return
	}

	auth.WriteSuccessResponse(w, "URL checked successfully", entry)
}

// handlePutDataset replaces a dataset with the uploaded records. The body is CSV when
// the Content-Type is text/csv, and hash[:count] lines otherwise.
func (ws *WebServer) handlePutDataset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	defer r.Body.Close()

	format := dataset.FormatText
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "text/csv" {
		format = dataset.FormatCSV
	}

	body := http.MaxBytesReader(w, r.Body, ws.config.MaxUploadBytes)
	records, err := dataset.Parse(body, format)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			auth.WriteErrorResponse(w, "Dataset too large", http.StatusRequestEntityTooLarge)
			return
		}
		ws.Logger.WithError(err).WithField("dataset", name).Warn("Rejected dataset upload")
		auth.WriteErrorResponseData(w, "Malformed dataset", models.DatasetUploadError{Dataset: name, Detail: err.Error()}, http.StatusBadRequest)
		return
	}

	err = ws.Lookup.Publish(name, records)
	switch {
	case errors.Is(err, lookup.ErrUnknownDataset):
		auth.WriteErrorResponse(w, "Unknown dataset", http.StatusNotFound)
		return
	case errors.Is(err, prefixindex.ErrMalformedRecord):
		ws.Logger.WithError(err).WithField("dataset", name).Warn("Rejected dataset upload")
		auth.WriteErrorResponseData(w, "Malformed dataset", models.DatasetUploadError{Dataset: name, Detail: err.Error()}, http.StatusBadRequest)
		return
	case err != nil:
		ws.Logger.WithError(err).WithField("dataset", name).Error("Failed to publish dataset")
		auth.WriteErrorResponse(w, "Failed to publish dataset", http.StatusInternalServerError)
		return
	}

	subject := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		subject, _ = claims["sub"].(string)
	}
	ws.Logger.WithFields(logrus.Fields{
		"dataset": name,
		"records": len(records),
		"by":      subject,
	}).Info("Dataset uploaded")

	for _, stats := range ws.Lookup.Stats() {
		if stats.Name == name {
			auth.WriteSuccessResponse(w, "Dataset published successfully", stats)
			return
		}
	}
	auth.WriteSuccessResponse(w, "Dataset published successfully", nil)
}

// handleForgetURL handles DELETE /admin/urls?url=, dropping a stored verdict.
func (ws *WebServer) handleForgetURL(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		auth.WriteErrorResponse(w, "url parameter is required", http.StatusBadRequest)
		return
	}

	key, err := ws.Evaluator.Forget(r.Context(), rawURL)
	switch {
	case errors.Is(err, verdict.ErrInvalidURL):
		auth.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		ws.Logger.WithError(err).Error("Failed to remove reputation entry")
		auth.WriteErrorResponse(w, "Failed to remove reputation entry", http.StatusInternalServerError)
		return
	}

	auth.WriteSuccessResponse(w, "Reputation entry removed", models.URLForgetResponse{URLKey: key})
}

// handleHealthz reports liveness.
func (ws *WebServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	auth.WriteSuccessResponse(w, "ok", nil)
}
