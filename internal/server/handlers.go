package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/access"
	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// actorFrom reads the resolved caller identity from request headers.
// Authentication itself happens upstream; the API trusts these headers.
func actorFrom(r *http.Request) models.Actor {
	return models.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Role: models.Role(r.Header.Get("X-Actor-Role")),
	}
}

type createSuggestionRequest struct {
	ParagraphID string `json:"paragraph_id" validate:"required"`
	Text        string `json:"text" validate:"required"`
}

func (s *Server) handleCreateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req createSuggestionRequest
	if !s.decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)

	var sug *models.Suggestion
	err := s.db.WithTx(r.Context(), func(tx *storage.Tx) error {
		p, err := tx.GetParagraph(r.Context(), req.ParagraphID)
		if err != nil {
			return err
		}
		if err := s.access.Can(r.Context(), actor, access.ActionSuggest, p.DocumentID); err != nil {
			return err
		}
		sug = &models.Suggestion{
			ID:          uuid.NewString(),
			ParagraphID: p.ID,
			DocumentID:  p.DocumentID,
			Text:        req.Text,
			CreatorID:   actor.ID,
			CreatedAt:   time.Now().UTC(),
		}
		return tx.CreateSuggestion(r.Context(), sug)
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.logger.Debug("suggestion created",
		zap.String("suggestion_id", sug.ID),
		zap.String("paragraph_id", sug.ParagraphID))
	s.respondJSON(w, http.StatusCreated, sug)
}

func (s *Server) handleDeleteSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := actorFrom(r)

	err := s.db.WithTx(r.Context(), func(tx *storage.Tx) error {
		sug, _, err := tx.GetSuggestion(r.Context(), id)
		if err != nil {
			return err
		}
		if actor.ID != sug.CreatorID && actor.Role != models.RoleAdmin && actor.Role != models.RoleOwner {
			return errdefs.Forbiddenf("only the creator or an admin can delete a suggestion")
		}
		if err := s.queue.ExpireForSuggestion(r.Context(), tx, id); err != nil {
			return err
		}
		return tx.DeleteSuggestion(r.Context(), id)
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type castEvaluationRequest struct {
	SuggestionID string `json:"suggestion_id" validate:"required"`
	Value        int    `json:"value" validate:"required,oneof=-1 1"`
}

func (s *Server) handleCastEvaluation(w http.ResponseWriter, r *http.Request) {
	var req castEvaluationRequest
	if !s.decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if actor.ID == "" {
		s.respondError(w, http.StatusForbidden, "caller identity required")
		return
	}

	result, err := s.ledger.Cast(r.Context(), actor, req.SuggestionID, req.Value)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleWithdrawEvaluation(w http.ResponseWriter, r *http.Request) {
	suggestionID := chi.URLParam(r, "suggestionID")
	actor := actorFrom(r)
	if actor.ID == "" {
		s.respondError(w, http.StatusForbidden, "caller identity required")
		return
	}

	result, err := s.ledger.Withdraw(r.Context(), actor, suggestionID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	sortBy := r.URL.Query().Get("sort_by")
	order := r.URL.Query().Get("order")

	items, err := s.queue.List(r.Context(), documentID, sortBy, order)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if items == nil {
		items = []*models.PendingReplacement{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

type decisionRequest struct {
	Action          string `json:"action" validate:"required,oneof=approve reject"`
	AdminEditedText string `json:"admin_edited_text,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "id")
	var req decisionRequest
	if !s.decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)

	var item *models.PendingReplacement
	var err error
	if req.Action == "approve" {
		item, err = s.review.Approve(r.Context(), actor, queueID, req.AdminEditedText, req.Notes)
	} else {
		item, err = s.review.Reject(r.Context(), actor, queueID, req.Notes)
	}
	if err != nil {
		// a decision race loser gets the winning resolution back
		if errors.Is(err, errdefs.ErrConflict) && item != nil {
			s.respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error": err.Error(),
				"item":  item,
			})
			return
		}
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	paragraphID := chi.URLParam(r, "id")
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	listing, err := s.history.List(r.Context(), paragraphID, page)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, listing)
}

type rollbackRequest struct {
	Version int    `json:"version" validate:"required,min=1"`
	Notes   string `json:"notes,omitempty"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	paragraphID := chi.URLParam(r, "id")
	var req rollbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)

	p, err := s.review.Rollback(r.Context(), actor, paragraphID, req.Version, req.Notes)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Read().GetStats(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	resp := map[string]interface{}{
		"stats": stats,
		"config": map[string]interface{}{
			"default_threshold": s.config.Review.DefaultThreshold,
			"min_evaluations":   s.config.Review.MinEvaluations,
			"history_page_size": s.config.History.PageSize,
			"database_path":     s.config.Storage.DatabasePath,
		},
		"database_size_bytes": storage.DatabaseSizeBytes(s.config.Storage.DatabasePath),
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// decode parses and validates a JSON request body. Responds on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status := errdefs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
