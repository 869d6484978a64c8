package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/memory"
	infrapdf "github.com/jhoicas/inventario-ledger/internal/infrastructure/pdf"
	apphttp "github.com/jhoicas/inventario-ledger/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/inventario-ledger/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testProductID = "prod-1"
	otherProduct  = "prod-2"
	otherTenantID = "00000000-0000-0000-0000-000000000009"
)

var quickRetry = inventory.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

// downRunner simula un almacenamiento caído.
type downRunner struct{}

func (downRunner) Run(context.Context, func(repository.StockMovementRepository, repository.StockProjectionRepository) error) error {
	return domain.ErrStorageUnavailable
}

// brokenInLeg falla la pata de entrada y la compensación de cualquier traslado.
type brokenInLeg struct {
	inner inventory.MovementApplier
}

func (b brokenInLeg) ApplyMovement(ctx context.Context, a inventory.Actor, req inventory.MovementRequest) (*entity.StockMovement, error) {
	if req.Kind == entity.MovementKindTransferIn {
		return nil, errors.New("destino fuera de línea")
	}
	return b.inner.ApplyMovement(ctx, a, req)
}

type apiOptions struct {
	runner         inventory.TxRunner
	brokenTransfer bool
}

func newAPI(t *testing.T, opts apiOptions) *fiber.App {
	t.Helper()
	store := memory.NewStore()
	store.AddProduct(entity.Product{ID: testProductID, TenantID: testTenantID, SKU: "SKU-1", Name: "Tornillo"})
	store.AddProduct(entity.Product{ID: otherProduct, TenantID: testTenantID, SKU: "SKU-2", Name: "Tuerca"})

	var runner inventory.TxRunner = store
	if opts.runner != nil {
		runner = opts.runner
	}
	engine := inventory.NewMovementEngine(runner, store.Movements(), store, nil, nil, quickRetry, nil)
	var applier inventory.MovementApplier = engine
	if opts.brokenTransfer {
		applier = brokenInLeg{inner: engine}
	}
	transfers := inventory.NewTransferOrchestrator(applier, store.Movements(), nil, nil)
	recon := inventory.NewReconciliationService(runner, store.Movements(), store.Projections(), store,
		nil, quickRetry, inventory.DefaultPageLimits(), nil)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Inventory: apphttp.NewInventoryHandler(engine, transfers, recon, infrapdf.NewMarotoStockCardGenerator(), 5*time.Second, nil),
		JWTSecret: testJWTSecret,
		JWTIssuer: testIssuer,
	})
	return app
}

func bearer(t *testing.T, tenantID, role string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, tenantID, role, testIssuer, testExpMin)
	require.NoError(t, err)
	return "Bearer " + tok
}

func call(t *testing.T, app *fiber.App, method, path, auth string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func movement(kind, qty, ref string) map[string]any {
	return map[string]any{"product_id": testProductID, "type": kind, "quantity": qty, "reference_id": ref}
}

// ──────────────────────────────────────────────────────────────────────────────
// POST /api/inventory/movements
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_CreaYReenvioIdempotente(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "bodeguero")

	resp, raw := call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("receipt", "10", "OC-1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	first := decode(t, raw)
	assert.Equal(t, "10", first["balance_after"])
	assert.Equal(t, "SKU-1", first["sku"])
	assert.Equal(t, testUserID, first["actor_id"])

	resp, raw = call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("receipt", "10", "OC-1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, first["id"], decode(t, raw)["id"])

	resp, raw = call(t, app, http.MethodGet, "/api/inventory/stock/"+testProductID, auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10", decode(t, raw)["quantity"])
}

func TestRegisterMovement_MapeoDeErrores(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "admin")

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"stock insuficiente", movement("sale", "1", ""), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"tipo desconocido", movement("in", "1", ""), http.StatusBadRequest, "VALIDATION"},
		{"cantidad cero", movement("receipt", "0", ""), http.StatusBadRequest, "VALIDATION"},
		{"más de cuatro decimales", movement("receipt", "0.00004", ""), http.StatusBadRequest, "VALIDATION"},
		{"producto inexistente", map[string]any{"product_id": "nope", "type": "receipt", "quantity": "1"}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := call(t, app, http.MethodPost, "/api/inventory/movements", auth, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode, string(raw))
			assert.Equal(t, tc.code, decode(t, raw)["code"])
		})
	}
}

func TestRegisterMovement_CuerpoInvalido(t *testing.T) {
	app := newAPI(t, apiOptions{})
	req := httptest.NewRequest(http.MethodPost, "/api/inventory/movements", strings.NewReader("{no es json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, testTenantID, "admin"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterMovement_VendedorNoRegistra(t *testing.T) {
	app := newAPI(t, apiOptions{})
	resp, _ := call(t, app, http.MethodPost, "/api/inventory/movements", bearer(t, testTenantID, "vendedor"), movement("receipt", "1", ""))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRegisterMovement_AlmacenamientoCaido_Retorna503(t *testing.T) {
	app := newAPI(t, apiOptions{runner: downRunner{}})
	resp, raw := call(t, app, http.MethodPost, "/api/inventory/movements", bearer(t, testTenantID, "admin"), movement("receipt", "1", ""))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "STORAGE_UNAVAILABLE", decode(t, raw)["code"])
}

// ──────────────────────────────────────────────────────────────────────────────
// POST /api/inventory/movements/batch
// ──────────────────────────────────────────────────────────────────────────────

func line(productID, kind, qty string) map[string]any {
	return map[string]any{"product_id": productID, "type": kind, "quantity": qty}
}

func stockOf(t *testing.T, app *fiber.App, auth, productID string) string {
	t.Helper()
	resp, raw := call(t, app, http.MethodGet, "/api/inventory/stock/"+productID, auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	return decode(t, raw)["quantity"].(string)
}

func TestRegisterMovements_RecepcionDeVariasLineas(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "bodeguero")

	body := map[string]any{
		"reference_id": "OC-77",
		"lines":        []any{line(testProductID, "purchase", "10"), line(otherProduct, "purchase", "4")},
	}
	resp, raw := call(t, app, http.MethodPost, "/api/inventory/movements/batch", auth, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var out struct {
		Movements []map[string]any `json:"movements"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Movements, 2)
	assert.Equal(t, testProductID, out.Movements[0]["product_id"])
	assert.Equal(t, "OC-77", out.Movements[1]["reference_id"])
	assert.Equal(t, "10", stockOf(t, app, auth, testProductID))
	assert.Equal(t, "4", stockOf(t, app, auth, otherProduct))

	// Reenviar el documento devuelve los mismos asientos sin sumar stock.
	resp, raw = call(t, app, http.MethodPost, "/api/inventory/movements/batch", auth, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.Equal(t, "10", stockOf(t, app, auth, testProductID))
}

func TestRegisterMovements_VentaSinStockNoAplicaNinguna(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "bodeguero")
	call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("receipt", "5", ""))

	body := map[string]any{
		"reference_id": "VTA-9",
		"lines": []any{
			line(testProductID, "sale", "2"),
			line(otherProduct, "sale", "1"),
			line(testProductID, "issue", "1"),
		},
	}
	resp, raw := call(t, app, http.MethodPost, "/api/inventory/movements/batch", auth, body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(raw))
	assert.Equal(t, "INSUFFICIENT_STOCK", decode(t, raw)["code"])

	assert.Equal(t, "5", stockOf(t, app, auth, testProductID))
	resp, raw = call(t, app, http.MethodGet, "/api/inventory/movements?limit=10", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode(t, raw)["page"].(map[string]any)
	assert.EqualValues(t, 1, page["total"], "solo la recepción inicial")
}

func TestRegisterMovements_DocumentoVacio(t *testing.T) {
	app := newAPI(t, apiOptions{})
	resp, raw := call(t, app, http.MethodPost, "/api/inventory/movements/batch", bearer(t, testTenantID, "admin"),
		map[string]any{"lines": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decode(t, raw)["code"])
}

func TestRegisterMovements_VendedorNoRegistra(t *testing.T) {
	app := newAPI(t, apiOptions{})
	resp, _ := call(t, app, http.MethodPost, "/api/inventory/movements/batch", bearer(t, testTenantID, "vendedor"),
		map[string]any{"lines": []any{line(testProductID, "receipt", "1")}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// POST /api/inventory/transfers
// ──────────────────────────────────────────────────────────────────────────────

func transferBody() map[string]any {
	return map[string]any{"product_id": testProductID, "quantity": "3", "from_location": "BOD-A", "to_location": "BOD-B"}
}

func TestTransfer_DosPatasConMismaReferencia(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "bodeguero")
	call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("receipt", "5", ""))

	resp, raw := call(t, app, http.MethodPost, "/api/inventory/transfers", auth, transferBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	body := decode(t, raw)
	ref, _ := body["reference_id"].(string)
	assert.True(t, strings.HasPrefix(ref, "TRF-"))
	out := body["out"].(map[string]any)
	in := body["in"].(map[string]any)
	assert.Equal(t, "-3", out["quantity_delta"])
	assert.Equal(t, "3", in["quantity_delta"])
	assert.Equal(t, ref, out["reference_id"])
	assert.Equal(t, ref, in["reference_id"])
}

func TestTransfer_CompensacionFallida_Retorna500Inconsistente(t *testing.T) {
	app := newAPI(t, apiOptions{brokenTransfer: true})
	auth := bearer(t, testTenantID, "admin")
	call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("receipt", "5", ""))

	resp, raw := call(t, app, http.MethodPost, "/api/inventory/transfers", auth, transferBody())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "TRANSFER_INCONSISTENT", decode(t, raw)["code"])
}

// ──────────────────────────────────────────────────────────────────────────────
// GET /api/inventory/movements y /movements/report
// ──────────────────────────────────────────────────────────────────────────────

func TestListMovements_PaginaYFiltros(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "bodeguero")
	call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("receipt", "5", ""))
	call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("sale", "2", ""))

	resp, raw := call(t, app, http.MethodGet, "/api/inventory/movements?limit=500", auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	body := decode(t, raw)
	page := body["page"].(map[string]any)
	assert.EqualValues(t, 100, page["limit"])
	assert.EqualValues(t, 2, page["total"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "sale", items[0].(map[string]any)["type"])

	today := time.Now().UTC().Format("2006-01-02")
	resp, raw = call(t, app, http.MethodGet, "/api/inventory/movements?kind=sale&to="+today, auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode(t, raw)["page"].(map[string]any)["total"])
}

func TestListMovements_ParametrosInvalidos(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "admin")

	for _, q := range []string{"kind=in", "from=ayer", "from=2026-02-01&to=2026-01-01", "offset=-1"} {
		resp, _ := call(t, app, http.MethodGet, "/api/inventory/movements?"+q, auth, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestMovementsReport_DevuelvePDF(t *testing.T) {
	app := newAPI(t, apiOptions{})
	auth := bearer(t, testTenantID, "bodeguero")
	call(t, app, http.MethodPost, "/api/inventory/movements", auth, movement("receipt", "5", "OC-9"))

	resp, raw := call(t, app, http.MethodGet, "/api/inventory/movements/report?product_id="+testProductID, auth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "kardex-SKU-1.pdf")
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))

	resp, _ = call(t, app, http.MethodGet, "/api/inventory/movements/report", auth, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Stock y recálculo
// ──────────────────────────────────────────────────────────────────────────────

func TestGetStock_VendedorConsultaYOtroTenantNoVe(t *testing.T) {
	app := newAPI(t, apiOptions{})

	resp, raw := call(t, app, http.MethodGet, "/api/inventory/stock/"+testProductID, bearer(t, testTenantID, "vendedor"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", decode(t, raw)["quantity"])

	resp, _ = call(t, app, http.MethodGet, "/api/inventory/stock/"+testProductID, bearer(t, otherTenantID, "admin"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecompute_SoloAdmin(t *testing.T) {
	app := newAPI(t, apiOptions{})
	call(t, app, http.MethodPost, "/api/inventory/movements", bearer(t, testTenantID, "admin"), movement("receipt", "7", ""))

	resp, _ := call(t, app, http.MethodPost, "/api/inventory/stock/"+testProductID+"/recompute", bearer(t, testTenantID, "bodeguero"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := call(t, app, http.MethodPost, "/api/inventory/stock/"+testProductID+"/recompute", bearer(t, testTenantID, "admin"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	body := decode(t, raw)
	assert.Equal(t, "7", body["quantity"])
	assert.Equal(t, false, body["drifted"])
}
