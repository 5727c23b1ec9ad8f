package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/recipes"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
	"github.com/ShariqSheikhh/AssemblyOS/internal/report"
)

// Catalog is the read side and the catalog writes, served straight from
// the store without going through the engine.
type Catalog interface {
	CreateItem(ctx context.Context, name string, qty int64) (items.Item, error)
	CreateProduct(ctx context.Context, p recipes.NewProduct) (items.Item, error)
	ListProducts(ctx context.Context) ([]items.Item, error)
	Inventory(ctx context.Context) ([]items.Item, error)
	Stats(ctx context.Context, lowStockThreshold int64) (items.Stats, error)
	ProductDetail(ctx context.Context, id int64) (*recipes.ProductDetail, error)
	ListOrders(ctx context.Context) ([]orders.Order, error)
	Movements(ctx context.Context, limit int) ([]items.Movement, error)
}

type API struct {
	engine    *engine.Engine
	catalog   Catalog
	log       *slog.Logger
	threshold int64
	now       func() time.Time
}

func NewAPI(e *engine.Engine, c Catalog, log *slog.Logger, lowStockThreshold int64) *API {
	return &API{engine: e, catalog: c, log: log, threshold: lowStockThreshold, now: time.Now}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/items", a.createItem)

	mux.HandleFunc("GET /api/products", a.listProducts)
	mux.HandleFunc("POST /api/products", a.createProduct)
	mux.HandleFunc("GET /api/products/inventory", a.inventory)
	mux.HandleFunc("GET /api/products/stats", a.stats)
	mux.HandleFunc("GET /api/products/{id}", a.productDetail)
	mux.HandleFunc("GET /api/products/{id}/feasibility", a.feasibility)
	mux.HandleFunc("POST /api/products/{id}/produce", a.produce)

	mux.HandleFunc("GET /api/orders", a.listOrders)
	mux.HandleFunc("POST /api/orders", a.createOrder)
	mux.HandleFunc("PUT /api/orders/{id}", a.updateOrder)
	mux.HandleFunc("POST /api/orders/{id}/complete", a.completeOrder)

	mux.HandleFunc("GET /api/stock/export", a.exportStock)
}

/* catalog */

type createItemRequest struct {
	Name            string `json:"name"`
	QuantityInStock int64  `json:"quantity_in_stock"`
}

func (a *API) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !a.decode(w, r, &req) {
		return
	}
	it, err := a.catalog.CreateItem(r.Context(), req.Name, req.QuantityInStock)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	var req recipes.NewProduct
	if !a.decode(w, r, &req) {
		return
	}
	it, err := a.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := a.catalog.ListProducts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) inventory(w http.ResponseWriter, r *http.Request) {
	list, err := a.catalog.Inventory(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.catalog.Stats(r.Context(), a.threshold)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) productDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := a.catalog.ProductDetail(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

/* engine */

func (a *API) feasibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	qty, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "quantity must be an integer")
		return
	}
	rep, err := a.engine.EvaluateFeasibility(r.Context(), id, qty)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feasibility": rep})
}

type quantityRequest struct {
	Quantity int64 `json:"quantity"`
}

func (a *API) produce(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.engine.Produce(r.Context(), id, req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.catalog.ListOrders(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createOrderRequest struct {
	ProductID         int64 `json:"product_id"`
	QuantityToProduce int64 `json:"quantity_to_produce"`
}

type orderResponse struct {
	Order       orders.Order             `json:"order"`
	Feasibility *engine.Report           `json:"feasibility,omitempty"`
	Production  *engine.ProductionResult `json:"production,omitempty"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	o, rep, err := a.engine.CreateOrder(r.Context(), req.ProductID, req.QuantityToProduce)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{Order: o, Feasibility: &rep})
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

func (a *API) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	st, err := orders.ParseStatus(req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	o, err := a.engine.UpdateOrderStatus(r.Context(), id, st)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: o})
}

func (a *API) completeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, res, err := a.engine.CompleteOrder(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: o, Production: &res})
}

func (a *API) exportStock(w http.ResponseWriter, r *http.Request) {
	buf := &bytes.Buffer{}
	if err := report.WriteStock(r.Context(), a.catalog, buf); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(a.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

/* helpers */

const maxBody = 1 << 20

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

type errorBody struct {
	Error       string         `json:"error"`
	Feasibility *engine.Report `json:"feasibility,omitempty"`
}

// fail maps engine and domain errors to a status. Anything unknown is a 500
// and is logged; the client only sees a generic message.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ise *engine.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Feasibility: &ise.Report})
	case errors.Is(err, engine.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotAProduct),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidStatus),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, recipes.ErrInvalidRecipe),
		errors.Is(err, items.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
