package http_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/jhoicas/inventario-ledger/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/inventario-ledger/pkg/jwt"
)

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testUserID    = "00000000-0000-0000-0000-000000000001"
	testTenantID  = "00000000-0000-0000-0000-000000000002"
	testIssuer    = "inventario-ledger-test"
	testExpMin    = 60
)

// signRaw firma claims arbitrarios, para tokens que Generate no produciría.
func signRaw(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func stockPath() string {
	return "/api/inventory/stock/" + testProductID
}

// ──────────────────────────────────────────────────────────────────────────────
// GetActor
// ──────────────────────────────────────────────────────────────────────────────

func TestGetActor_TomaTenantYUsuarioDelToken(t *testing.T) {
	app := fiber.New()
	app.Get("/whoami", apphttp.AuthMiddleware(testJWTSecret, testIssuer), func(c *fiber.Ctx) error {
		a := apphttp.GetActor(c)
		return c.JSON(fiber.Map{"tenant_id": a.TenantID, "actor_id": a.ActorID, "role": apphttp.GetRole(c)})
	})

	resp, raw := call(t, app, http.MethodGet, "/whoami", bearer(t, testTenantID, "vendedor"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, raw)
	assert.Equal(t, testTenantID, body["tenant_id"])
	assert.Equal(t, testUserID, body["actor_id"])
	assert.Equal(t, "vendedor", body["role"])
}

func TestGetActor_SinMiddlewareQuedaVacio(t *testing.T) {
	app := fiber.New()
	app.Get("/whoami", func(c *fiber.Ctx) error {
		a := apphttp.GetActor(c)
		return c.JSON(fiber.Map{"tenant_id": a.TenantID, "actor_id": a.ActorID})
	})

	_, raw := call(t, app, http.MethodGet, "/whoami", "", nil)
	body := decode(t, raw)
	assert.Empty(t, body["tenant_id"])
	assert.Empty(t, body["actor_id"])
}

func TestGetActor_AsientoRegistraUsuarioDelToken(t *testing.T) {
	app := newAPI(t, apiOptions{})

	resp, raw := call(t, app, http.MethodPost, "/api/inventory/movements",
		bearer(t, testTenantID, "bodeguero"), movement("receipt", "3", "OC-ACT"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.Equal(t, testUserID, decode(t, raw)["actor_id"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Rechazos del token
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware_TokensRechazados(t *testing.T) {
	now := time.Now()
	valid := func() jwtlib.MapClaims {
		return jwtlib.MapClaims{
			"iss":       testIssuer,
			"sub":       testUserID,
			"exp":       now.Add(time.Hour).Unix(),
			"user_id":   testUserID,
			"tenant_id": testTenantID,
			"role":      "admin",
		}
	}
	without := func(key string) jwtlib.MapClaims {
		c := valid()
		delete(c, key)
		return c
	}
	with := func(key string, v any) jwtlib.MapClaims {
		c := valid()
		c[key] = v
		return c
	}

	cases := []struct {
		name string
		auth string
		code string
	}{
		{"sin header", "", "MISSING_TOKEN"},
		{"esquema Basic", "Basic dXNlcjpwYXNz", "INVALID_TOKEN"},
		{"sin esquema", "solo-un-token", "INVALID_TOKEN"},
		{"malformado", "Bearer token.invalido.aqui", "INVALID_TOKEN"},
		{"sin tenant_id", signRaw(t, without("tenant_id")), "INVALID_TOKEN"},
		{"tenant_id vacío", signRaw(t, with("tenant_id", "")), "INVALID_TOKEN"},
		{"sin user_id", signRaw(t, without("user_id")), "INVALID_TOKEN"},
		{"emisor distinto", signRaw(t, with("iss", "otro-emisor")), "INVALID_TOKEN"},
		{"sin emisor", signRaw(t, without("iss")), "INVALID_TOKEN"},
		{"expirado", signRaw(t, with("exp", now.Add(-time.Minute).Unix())), "INVALID_TOKEN"},
		{"sin rol", signRaw(t, without("role")), "MISSING_ROLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newAPI(t, apiOptions{})
			resp, raw := call(t, app, http.MethodGet, stockPath(), tc.auth, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tc.code, decode(t, raw)["code"])
		})
	}
}

func TestAuthMiddleware_FirmaDeOtroSecreto(t *testing.T) {
	tok, err := pkgjwt.Generate("otro-secret-completamente-distinto", testUserID, testTenantID, "admin", testIssuer, testExpMin)
	require.NoError(t, err)

	resp, _ := call(t, newAPI(t, apiOptions{}), http.MethodGet, stockPath(), "Bearer "+tok, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware_EmisorVacioNoValidaIss(t *testing.T) {
	app := fiber.New()
	app.Get("/whoami", apphttp.AuthMiddleware(testJWTSecret, ""), func(c *fiber.Ctx) error {
		return c.SendString(apphttp.GetTenantID(c))
	})
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, testTenantID, "admin", "cualquier-emisor", testExpMin)
	require.NoError(t, err)

	resp, raw := call(t, app, http.MethodGet, "/whoami", "Bearer "+tok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testTenantID, string(raw))
}

// ──────────────────────────────────────────────────────────────────────────────
// Roles sobre las rutas de inventario
// ──────────────────────────────────────────────────────────────────────────────

func TestRequireRole_MatrizDeRutas(t *testing.T) {
	type route struct {
		name   string
		method string
		path   string
		body   any
		roles  []string // roles admitidos
		want   int      // estado esperado para un rol admitido; 0 = cualquiera salvo 401/403
	}
	routes := []route{
		{"registrar movimiento", http.MethodPost, "/api/inventory/movements",
			movement("receipt", "1", "OC-M"), []string{"admin", "bodeguero"}, http.StatusCreated},
		{"registrar documento", http.MethodPost, "/api/inventory/movements/batch",
			map[string]any{"reference_id": "OC-B", "lines": []map[string]any{
				{"product_id": testProductID, "type": "receipt", "quantity": "1"},
			}}, []string{"admin", "bodeguero"}, http.StatusCreated},
		{"listar historial", http.MethodGet, "/api/inventory/movements",
			nil, []string{"admin", "bodeguero"}, http.StatusOK},
		{"kárdex pdf", http.MethodGet, "/api/inventory/movements/report?product_id=" + testProductID,
			nil, []string{"admin", "bodeguero"}, 0},
		{"trasladar", http.MethodPost, "/api/inventory/transfers",
			map[string]any{"product_id": testProductID, "quantity": "1", "from_location": "A", "to_location": "B"},
			[]string{"admin", "bodeguero"}, 0},
		{"consultar stock", http.MethodGet, stockPath(),
			nil, []string{"admin", "bodeguero", "vendedor"}, http.StatusOK},
		{"recalcular", http.MethodPost, stockPath() + "/recompute",
			nil, []string{"admin"}, http.StatusOK},
	}

	for _, r := range routes {
		for _, role := range []string{"admin", "bodeguero", "vendedor"} {
			t.Run(r.name+"/"+role, func(t *testing.T) {
				app := newAPI(t, apiOptions{})
				resp, raw := call(t, app, r.method, r.path, bearer(t, testTenantID, role), r.body)

				allowed := false
				for _, a := range r.roles {
					allowed = allowed || a == role
				}
				if !allowed {
					assert.Equal(t, http.StatusForbidden, resp.StatusCode)
					assert.Equal(t, "FORBIDDEN", decode(t, raw)["code"])
					return
				}
				if r.want != 0 {
					assert.Equal(t, r.want, resp.StatusCode, string(raw))
					return
				}
				assert.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)
				assert.NotEqual(t, http.StatusForbidden, resp.StatusCode)
			})
		}
	}
}

func TestRequireRole_RolDesconocido(t *testing.T) {
	resp, raw := call(t, newAPI(t, apiOptions{}), http.MethodGet, stockPath(), bearer(t, testTenantID, "auditor"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decode(t, raw)["code"])
}
