package workspacehttp

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/catalog"
	"github.com/odyssey-erp/barledger/internal/identity"
	"github.com/odyssey-erp/barledger/internal/ledger"
	"github.com/odyssey-erp/barledger/internal/platform/httpx"
	"github.com/odyssey-erp/barledger/internal/shared"
	"github.com/odyssey-erp/barledger/internal/workspace"
)

// Workspaces resolves the open workspace of a tenant on behalf of a session.
type Workspaces interface {
	Join(ctx context.Context, sessionID string, tenantID int64) (*workspace.Workspace, error)
}

// Handler exposes the catalog, ledger and expense endpoints as JSON.
type Handler struct {
	logger     *slog.Logger
	workspaces Workspaces
	validator  *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, workspaces Workspaces) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, workspaces: workspaces, validator: validator.New()}
}

// MountRoutes registers routes. The caller installs identity.Middleware.Require.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/match", h.matchProduct)
		r.Patch("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", h.showLedger)
		r.Put("/stock/{productID}", h.setStock)
		r.Put("/deliveries/{productID}", h.setDelivery)
		r.Put("/cash", h.setCash)
		r.Put("/date", h.switchDate)
		r.Post("/ingest", h.ingest)
		r.Post("/save", h.save)
		r.Get("/history", h.listHistory)
		r.Get("/history/{id}", h.showRecord)
		r.Get("/history/{id}/export", h.exportRecord)
		r.Delete("/history/{id}", h.deleteRecord)
	})
	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", h.listExpenses)
		r.Post("/", h.createExpense)
		r.Delete("/{id}", h.deleteExpense)
	})
}

// resolve returns the caller identity and its tenant workspace, writing the
// error response itself when either is missing.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (identity.Identity, *workspace.Workspace, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return identity.Identity{}, nil, false
	}
	var sessionID string
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sessionID = sess.ID
	}
	ws, err := h.workspaces.Join(r.Context(), sessionID, actor.TenantID)
	if err != nil {
		h.fail(w, r, err)
		return identity.Identity{}, nil, false
	}
	return actor, ws, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound):
		h.logger.Info("request rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	default:
		h.logger.Warn("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// decode reads a JSON body and runs struct validation on it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", shared.ErrValidation, err)
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, name)), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", shared.ErrValidation, name)
	}
	return v, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	v, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", shared.ErrValidation, name)
	}
	return v, nil
}

type productRequest struct {
	Name         string               `json:"name" validate:"required"`
	UnitPrice    decimal.Decimal      `json:"unit_price"`
	PackageSizes catalog.PackageSizes `json:"package_sizes"`
	Kind         catalog.Kind         `json:"kind" validate:"omitempty,oneof=package unit"`
	Pricing      catalog.Pricing      `json:"pricing"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	_, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, ws.Products())
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req productRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := ws.AddProduct(r.Context(), actor, catalog.Entry{
		Name:         req.Name,
		UnitPrice:    req.UnitPrice,
		PackageSizes: req.PackageSizes,
		Kind:         req.Kind,
		Pricing:      req.Pricing,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) matchProduct(w http.ResponseWriter, r *http.Request) {
	_, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.fail(w, r, fmt.Errorf("%w: q required", shared.ErrValidation))
		return
	}
	m, found := ws.MatchProduct(q)
	if !found {
		h.fail(w, r, fmt.Errorf("%w: no product matches %q", catalog.ErrEntryNotFound, q))
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch catalog.Patch
	if err := h.decode(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := ws.UpdateProduct(r.Context(), actor, id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := ws.RemoveProduct(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showLedger(w http.ResponseWriter, r *http.Request) {
	_, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, ws.Snapshot())
}

type quantityRequest struct {
	Quantity    *int64 `json:"quantity" validate:"required"`
	PackageSize int64  `json:"package_size" validate:"gte=0"`
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	productID, err := pathInt64(r, "productID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req quantityRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := ws.SetStockQuantity(r.Context(), actor, productID, *req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) setDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	productID, err := pathInt64(r, "productID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req quantityRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := ws.SetDeliveryQuantity(r.Context(), actor, productID, *req.Quantity, req.PackageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

type cashRequest struct {
	OpeningStockValue *decimal.Decimal `json:"opening_stock_value"`
	CashCollected     *decimal.Decimal `json:"cash_collected"`
	ManagerCashOnHand *decimal.Decimal `json:"manager_cash_on_hand"`
}

func (h *Handler) setCash(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req cashRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := ws.SetCash(r.Context(), actor, workspace.CashUpdate{
		OpeningStockValue: req.OpeningStockValue,
		CashCollected:     req.CashCollected,
		ManagerCashOnHand: req.ManagerCashOnHand,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

type dateRequest struct {
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Discard bool   `json:"discard"`
}

func (h *Handler) switchDate(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req dateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: date: %v", shared.ErrValidation, err))
		return
	}
	snap, err := ws.SwitchDate(r.Context(), actor, day, req.Discard)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

type ingestRequest struct {
	Results []ledger.ExternalQuantity `json:"results" validate:"required,min=1,dive"`
}

type ingestResponse struct {
	Result   ledger.IngestResult `json:"result"`
	Snapshot ledger.Snapshot     `json:"snapshot"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req ingestRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := ws.Ingest(r.Context(), actor, req.Results)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ingestResponse{Result: res, Snapshot: ws.Snapshot()})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	rec, err := ws.Save(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	_, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	filter, err := parseHistoryFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := ws.History(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

func parseHistoryFilter(r *http.Request) (ledger.HistoryFilter, error) {
	var f ledger.HistoryFilter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("%w: from: %v", shared.ErrValidation, err)
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("%w: to: %v", shared.ErrValidation, err)
		}
		f.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("%w: limit must be a positive integer", shared.ErrValidation)
		}
		f.Limit = n
	}
	return f, nil
}

func (h *Handler) showRecord(w http.ResponseWriter, r *http.Request) {
	_, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := ws.Record(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) exportRecord(w http.ResponseWriter, r *http.Request) {
	_, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := ws.Record(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ledger_%s.csv", rec.Date.Format(time.DateOnly)))
	writer := csv.NewWriter(w)
	for _, row := range ledger.ExportRows(rec.Snapshot) {
		if err := writer.Write(row); err != nil {
			break
		}
	}
	writer.Flush()
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := ws.DeleteRecord(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type expenseRequest struct {
	Motif  string          `json:"motif" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	_, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	entries, total := ws.Expenses()
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := ws.AddExpense(r.Context(), actor, req.Motif, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, ws, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := ws.RemoveExpense(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
