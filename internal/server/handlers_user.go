package server

import (
	"context"
	"net/http"
	"time"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/models"
)

// resolveUser loads the caller's user record, creating it on first sight
// from the token claims. The plan tier always follows the token: the
// billing collaborator, not this store, owns plan state.
func (s *Server) resolveUser(ctx context.Context, w http.ResponseWriter) (*models.User, bool) {
	uc, ok := common.UserContextFrom(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "Missing user context")
		return nil, false
	}
	plan, err := models.ParsePlanTier(uc.Plan)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Unknown plan tier in token")
		return nil, false
	}

	user, err := s.app.Storage.UserStore().GetUser(ctx, uc.UserID)
	if err != nil {
		user = &models.User{
			ID:            uc.UserID,
			Email:         uc.Email,
			Plan:          plan,
			RiskTolerance: models.ToleranceMedium,
			Notifications: models.NotificationPrefs{Email: true, Push: true},
			CreatedAt:     time.Now(),
		}
		if saveErr := s.app.Storage.UserStore().SaveUser(ctx, user); saveErr != nil {
			s.logger.Warn().Err(saveErr).Str("user", uc.UserID).Msg("Failed to persist new user")
		}
	}
	user.Plan = plan
	return user, true
}

// userPrefsRequest is the mutable slice of a user record.
type userPrefsRequest struct {
	Name          string                    `json:"name,omitempty"`
	RiskTolerance string                    `json:"risk_tolerance,omitempty"`
	Notifications *models.NotificationPrefs `json:"notifications,omitempty"`
}

// handleUserMe handles GET and PUT /api/users/me.
func (s *Server) handleUserMe(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		WriteJSON(w, http.StatusOK, user)
		return
	}

	var req userPrefsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.RiskTolerance != "" {
		switch models.RiskTolerance(req.RiskTolerance) {
		case models.ToleranceLow, models.ToleranceMedium, models.ToleranceHigh:
			user.RiskTolerance = models.RiskTolerance(req.RiskTolerance)
		default:
			WriteError(w, http.StatusBadRequest, "risk_tolerance must be low, medium or high")
			return
		}
	}
	if req.Notifications != nil {
		user.Notifications = *req.Notifications
	}

	if err := s.app.Storage.UserStore().SaveUser(r.Context(), user); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}
