package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/barledger/internal/platform/httpx"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// Lifecycle is notified when a tenant session starts and ends so the
// per-tenant workspace can be opened at login and torn down at logout.
// Both calls are keyed by session id and must be idempotent per session.
type Lifecycle interface {
	Open(ctx context.Context, sessionID string, id Identity) error
	Close(ctx context.Context, sessionID string, tenantID int64)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	lifecycle Lifecycle
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. lifecycle may be nil.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, lifecycle Lifecycle) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		csrf:      csrf,
		lifecycle: lifecycle,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. /me requires the
// identity middleware upstream when mounted behind it; it resolves the
// session itself otherwise.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Identity  Identity `json:"identity"`
	CSRFToken string   `json:"csrf_token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			httpx.ValidationProblem(w, fields)
			return
		}
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	id, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login rejected", slog.String("email", req.Email), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.lifecycle != nil {
		if prev := sess.Tenant(); prev != 0 && prev != id.TenantID {
			h.lifecycle.Close(r.Context(), sess.ID, prev)
		}
		if err := h.lifecycle.Open(r.Context(), sess.ID, id); err != nil {
			h.logger.Error("open workspace", slog.Int64("tenant_id", id.TenantID), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}
	sess.SetPrincipal(id.UserID, id.TenantID)
	token, err := h.csrf.RotateToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("login", slog.Int64("user_id", id.UserID), slog.Int64("tenant_id", id.TenantID))
	httpx.JSON(w, http.StatusOK, loginResponse{Identity: id, CSRFToken: token})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if tenantID := sess.Tenant(); tenantID != 0 && h.lifecycle != nil {
			h.lifecycle.Close(r.Context(), sess.ID, tenantID)
		}
		h.sessions.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := FromContext(r.Context())
	if !ok {
		var userID int64
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			userID = sess.User()
		}
		resolved, err := h.service.WhoAmI(r.Context(), userID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		id = resolved
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"identity":  id,
		"can_write": id.CanWrite(h.service.Now()),
	})
}
