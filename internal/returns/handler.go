package returns

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
)

// Handler exposes vendor return endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers return routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/returns", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/submit", h.transitionHandler("submit", (*Service).Submit))
		r.Post("/{id}/approve", h.decide("approve", (*Service).Approve))
		r.Post("/{id}/reject", h.decide("reject", (*Service).Reject))
		r.Post("/{id}/send", h.transitionHandler("send", (*Service).MarkSent))
		r.Post("/{id}/complete", h.transitionHandler("complete", (*Service).Complete))
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	vendorID, _ := strconv.ParseInt(r.URL.Query().Get("vendor_id"), 10, 64)
	rets, pagination, err := h.service.List(r.Context(), ListFilter{
		Status:   Status(r.URL.Query().Get("status")),
		VendorID: vendorID,
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		h.logger.Error("list returns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rets, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	ret, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"return": ret, "items": items})
}

func (h *Handler) transitionHandler(name string, fn func(*Service, context.Context, int64, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err := fn(h.service, r.Context(), id, actorID(r)); err != nil {
			h.logger.Error(name+" return", slog.Any("error", err), slog.Int64("id", id))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

type decisionRequest struct {
	Note string `json:"note"`
}

func (h *Handler) decide(name string, fn func(*Service, context.Context, int64, int64, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		var req decisionRequest
		if r.ContentLength > 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Payload tidak valid")
				return
			}
		}
		if err := fn(h.service, r.Context(), id, actorID(r), req.Note); err != nil {
			h.logger.Error(name+" return", slog.Any("error", err), slog.Int64("id", id))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

// actorID reads the authenticated user id forwarded by the gateway.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
