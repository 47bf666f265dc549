package inbound

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
)

// Handler exposes inbound endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inbound routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inbounds", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/children", h.children)
		r.Post("/{id}/verify", h.verify)
		r.Put("/{id}/proof", h.attachProof)
	})
	r.Post("/inbound-items/{id}/resolve", h.resolve)
}

type createRequest struct {
	GRNNumber         string `json:"grn_number"`
	PurchaseRequestID int64  `json:"purchase_request_id"`
	VendorID          int64  `json:"vendor_id" validate:"required"`
	WarehouseID       int64  `json:"warehouse_id"`
	ReceiveDate       string `json:"receive_date"`
	Note              string `json:"note"`
	Lines             []struct {
		ItemID   int64 `json:"item_id" validate:"required"`
		Quantity int64 `json:"quantity" validate:"gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Payload tidak valid")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	var receiveDate time.Time
	if req.ReceiveDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ReceiveDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Format tanggal terima harus YYYY-MM-DD")
			return
		}
		receiveDate = parsed
	}
	lines := make([]CreateLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, CreateLine{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	created, err := h.service.CreateFromPurchaseOrder(r.Context(), CreateInput{
		GRNNumber:         req.GRNNumber,
		PurchaseRequestID: req.PurchaseRequestID,
		VendorID:          req.VendorID,
		WarehouseID:       req.WarehouseID,
		ReceiveDate:       receiveDate,
		Note:              req.Note,
		ActorID:           actorID(r),
		Lines:             lines,
	})
	if err != nil {
		h.logger.Error("create inbound", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	vendorID, _ := strconv.ParseInt(r.URL.Query().Get("vendor_id"), 10, 64)
	items, pagination, err := h.service.List(r.Context(), ListFilter{
		Status:   Status(r.URL.Query().Get("status")),
		VendorID: vendorID,
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		h.logger.Error("list inbounds", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	in, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"inbound": in, "lines": lines})
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	children, err := h.service.Children(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": children})
}

type verifyRequest struct {
	Note  string `json:"note"`
	Lines []struct {
		ItemID      int64  `json:"item_id" validate:"required"`
		ReceivedQty int64  `json:"received_qty" validate:"gte=0"`
		AcceptedQty int64  `json:"accepted_qty" validate:"gte=0"`
		RejectedQty int64  `json:"rejected_qty" validate:"gte=0"`
		Discrepancy string `json:"discrepancy_type"`
		Reason      string `json:"reason"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Payload tidak valid")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	lines := make([]VerifyLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, VerifyLine{
			ItemID:      line.ItemID,
			ReceivedQty: line.ReceivedQty,
			AcceptedQty: line.AcceptedQty,
			RejectedQty: line.RejectedQty,
			Discrepancy: DiscrepancyType(line.Discrepancy),
			Reason:      line.Reason,
		})
	}
	result, err := h.service.Verify(r.Context(), VerifyInput{
		InboundID:      id,
		VerifierID:     actorID(r),
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Lines:          lines,
	})
	if err != nil {
		h.logger.Error("verify inbound", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"inbound": result.Inbound, "lines": result.Lines, "posted": result.Posted})
}

type resolveRequest struct {
	Action string `json:"action" validate:"required"`
	Note   string `json:"note"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Payload tidak valid")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Resolve(r.Context(), ResolveInput{
		LineID:  id,
		ActorID: actorID(r),
		Action:  ResolutionAction(req.Action),
		Note:    req.Note,
	})
	if err != nil {
		h.logger.Error("resolve discrepancy", slog.Any("error", err), slog.Int64("line_id", id))
		httpx.RespondError(w, err)
		return
	}
	body := map[string]any{"line": result.Line}
	if result.Return != nil {
		body["return"] = result.Return
	}
	if result.Child != nil {
		body["child"] = result.Child
	}
	if result.Card != nil {
		body["stock_card"] = result.Card
	}
	httpx.JSON(w, http.StatusOK, body)
}

type proofRequest struct {
	URL string `json:"url" validate:"required"`
}

func (h *Handler) attachProof(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req proofRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Payload tidak valid")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.service.AttachProof(r.Context(), id, req.URL, actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// actorID reads the authenticated user id forwarded by the gateway. The
// service trusts it; authentication happens upstream.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
