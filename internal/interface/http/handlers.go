// Package http implements the REST API for Run Community Hub.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/runhub/run-community-hub/internal/application/command"
	"github.com/runhub/run-community-hub/internal/application/query"
	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Run Community Hub API",
		"version":     "v1",
		"description": "Ranking and points reconciliation for the community leaderboard",
		"endpoints": map[string]string{
			"health":  "/health",
			"board":   "/api/v1/board",
			"players": "/api/v1/players/{id}",
		},
		"documentation": "https://github.com/runhub/run-community-hub",
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics handles the metrics endpoint.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
		"running":        s.IsRunning(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// BOARD HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetBoard handles GET /api/v1/board
func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetBoardHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Board handler not configured")
		return
	}

	q := query.GetBoardQuery{
		BoardKind:       getQueryParam(r, "board", ""),
		CategoryRef:     getQueryParam(r, "category", ""),
		PlatformRef:     getQueryParam(r, "platform", ""),
		LevelRef:        getQueryParam(r, "level", ""),
		Mode:            getQueryParam(r, "mode", ""),
		Limit:           getQueryParamInt(r, "limit", 20),
		IncludeObsolete: s.config.AllowObsoleteParam && getQueryParamBool(r, "include_obsolete"),
		BypassCache:     s.config.AllowFreshParam && getQueryParamBool(r, "fresh"),
	}

	result, err := s.deps.GetBoardHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to get board")
		return
	}

	meta := &ResponseMeta{
		TotalCount: result.TotalRuns,
		FromCache:  result.FromCache,
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetPlayerProfile handles GET /api/v1/players/{id}
func (s *Server) handleGetPlayerProfile(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	if accountID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Player ID is required")
		return
	}

	if s.deps.GetPlayerProfileHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Profile handler not configured")
		return
	}

	q := query.GetPlayerProfileQuery{
		AccountID: accountID,
		RunLimit:  getQueryParamInt(r, "run_limit", 50),
	}

	result, err := s.deps.GetPlayerProfileHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to get player profile")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleClaimRun handles POST /api/v1/runs/{id}/claim
func (s *Server) handleClaimRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if s.deps.ClaimRunHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Claim handler not configured")
		return
	}

	var body struct {
		AccountID string `json:"account_id"`
		Force     bool   `json:"force"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.ClaimRunCommand{
		RunID:         runID,
		AccountID:     body.AccountID,
		Force:         body.Force,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.ClaimRunHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to claim run")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// MODERATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// moderationBody is the shared request envelope for simple moderation actions.
type moderationBody struct {
	ModeratorID string `json:"moderator_id"`
}

// handleVerifyRun handles POST /api/v1/admin/runs/{id}/verify
func (s *Server) handleVerifyRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.VerifyRunHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Verify handler not configured")
		return
	}

	var body moderationBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.VerifyRunCommand{
		RunID:         r.PathValue("id"),
		ModeratorID:   body.ModeratorID,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.VerifyRunHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to verify run")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleUnverifyRun handles POST /api/v1/admin/runs/{id}/unverify
func (s *Server) handleUnverifyRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.UnverifyRunHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Unverify handler not configured")
		return
	}

	var body moderationBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.UnverifyRunCommand{
		RunID:         r.PathValue("id"),
		ModeratorID:   body.ModeratorID,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.UnverifyRunHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to unverify run")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleEditRun handles PATCH /api/v1/admin/runs/{id}
func (s *Server) handleEditRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.EditRunHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Edit handler not configured")
		return
	}

	var body struct {
		ModeratorID        string  `json:"moderator_id"`
		Time               *string `json:"time,omitempty"`
		BoardKind          *string `json:"board_kind,omitempty"`
		CategoryRef        *string `json:"category_ref,omitempty"`
		PlatformRef        *string `json:"platform_ref,omitempty"`
		LevelRef           *string `json:"level_ref,omitempty"`
		Mode               *string `json:"mode,omitempty"`
		OwnerDisplayName   *string `json:"owner_display_name,omitempty"`
		CoOwnerDisplayName *string `json:"co_owner_display_name,omitempty"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.EditRunCommand{
		RunID:              r.PathValue("id"),
		ModeratorID:        body.ModeratorID,
		Time:               body.Time,
		BoardKind:          body.BoardKind,
		CategoryRef:        body.CategoryRef,
		PlatformRef:        body.PlatformRef,
		LevelRef:           body.LevelRef,
		Mode:               body.Mode,
		OwnerDisplayName:   body.OwnerDisplayName,
		CoOwnerDisplayName: body.CoOwnerDisplayName,
		CorrelationID:      getRequestID(r.Context()),
	}

	result, err := s.deps.EditRunHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to edit run")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleToggleObsolete handles POST /api/v1/admin/runs/{id}/obsolete
func (s *Server) handleToggleObsolete(w http.ResponseWriter, r *http.Request) {
	if s.deps.ToggleObsoleteHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Obsolete handler not configured")
		return
	}

	var body struct {
		ModeratorID string `json:"moderator_id"`
		Obsolete    bool   `json:"obsolete"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.ToggleObsoleteCommand{
		RunID:         r.PathValue("id"),
		ModeratorID:   body.ModeratorID,
		Obsolete:      body.Obsolete,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.ToggleObsoleteHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to toggle obsolete flag")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeleteRun handles DELETE /api/v1/admin/runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeleteRunHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Delete handler not configured")
		return
	}

	cmd := command.DeleteRunCommand{
		RunID:         r.PathValue("id"),
		ModeratorID:   r.Header.Get("X-Moderator-ID"),
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.DeleteRunHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to delete run")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAutoLinkRuns handles POST /api/v1/admin/players/{id}/autolink
func (s *Server) handleAutoLinkRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.AutoLinkRunsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Autolink handler not configured")
		return
	}

	cmd := command.AutoLinkRunsCommand{
		AccountID:     r.PathValue("id"),
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.AutoLinkRunsHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to autolink runs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleRecomputeTotals handles POST /api/v1/admin/players/{id}/recompute
func (s *Server) handleRecomputeTotals(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecomputeTotalsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Recompute handler not configured")
		return
	}

	cmd := command.RecomputeTotalsCommand{
		AccountID:     r.PathValue("id"),
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.RecomputeTotalsHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to recompute totals")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleBackfill handles POST /api/v1/admin/backfill
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if s.deps.BackfillHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Backfill handler not configured")
		return
	}

	var body struct {
		PageSize int `json:"page_size"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.BackfillCommand{
		PageSize:      body.PageSize,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.BackfillHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "backfill failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleImportRuns handles POST /api/v1/admin/import
func (s *Server) handleImportRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.ImportRunsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Import handler not configured")
		return
	}

	var body struct {
		Since string `json:"since"`
		Limit int    `json:"limit"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	var since time.Time
	if body.Since != "" {
		parsed, err := time.Parse(time.RFC3339, body.Since)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "since must be RFC3339")
			return
		}
		since = parsed
	}

	cmd := command.ImportRunsCommand{
		Since:         since,
		Limit:         body.Limit,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.ImportRunsHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "import failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody parses a JSON request body into dst. An empty body is accepted
// and leaves dst zeroed. Returns false after writing an error response.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return true
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	return true
}

// writeHandlerError maps application errors to HTTP status codes.
func (s *Server) writeHandlerError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, shared.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrAlreadyExists):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrPermissionDenied):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidEntity),
		errors.Is(err, shared.ErrInvalidFormat):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, shared.ErrServiceUnavailable),
		errors.Is(err, shared.ErrTimeout),
		errors.Is(err, shared.ErrRateLimited):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, status, code, msg)
		return
	}

	// Client errors carry the underlying reason.
	writeJSONErrorWithDetails(w, status, code, msg, err.Error())
}
