package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/smallbiznis/papermill/internal/billing/domain"
	billingrepo "github.com/smallbiznis/papermill/internal/billing/repository"
	billingservice "github.com/smallbiznis/papermill/internal/billing/service"
	"github.com/smallbiznis/papermill/internal/auth/session"
	accessservice "github.com/smallbiznis/papermill/internal/access/service"
	"github.com/smallbiznis/papermill/internal/clock"
	"github.com/smallbiznis/papermill/internal/config"
	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	creditrepo "github.com/smallbiznis/papermill/internal/credit/repository"
	creditservice "github.com/smallbiznis/papermill/internal/credit/service"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	oplogrepo "github.com/smallbiznis/papermill/internal/oplog/repository"
	oplogservice "github.com/smallbiznis/papermill/internal/oplog/service"
	"github.com/smallbiznis/papermill/internal/pdfengine"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	userrepo "github.com/smallbiznis/papermill/internal/user/repository"
	userservice "github.com/smallbiznis/papermill/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubAuthz approves a fixed set of subjects.
type stubAuthz struct {
	allowed map[string]bool
}

func (a *stubAuthz) Authorize(_ context.Context, actor, _, _ string) error {
	if a.allowed[actor] {
		return nil
	}
	return ErrForbidden
}

type testServer struct {
	*Server
	db *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&userdomain.User{},
		&session.Session{},
		&creditdomain.OneTimePurchase{},
		&creditdomain.ConsumedOneTimePayment{},
		&billingdomain.EventRecord{},
		&oplogdomain.OperationRecord{},
		&oplogdomain.OperationDailyStat{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{HTTPAddr: ":0"}

	userSvc := userservice.NewService(userservice.ServiceParam{
		DB: gdb, Log: log, GenID: node, Clock: clk, Repo: userrepo.Provide(),
	})
	creditSvc := creditservice.NewService(creditservice.ServiceParam{
		DB: gdb, Log: log, GenID: node, Clock: clk, Repo: creditrepo.Provide(),
	})
	oplogSvc := oplogservice.NewService(oplogservice.ServiceParam{
		DB: gdb, Log: log, GenID: node, Clock: clk, Repo: oplogrepo.Provide(),
	})
	resolver := accessservice.NewService(accessservice.ServiceParam{
		Log: log, Clock: clk, UserSvc: userSvc,
	})
	billingSvc := billingservice.NewService(billingservice.Params{
		Log: log, Cfg: cfg, Clock: clk, GenID: node,
		Repo: billingrepo.NewRepository(gdb), UserSvc: userSvc, CreditSvc: creditSvc,
	})
	limits, err := config.NewLimitsHolder()
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		DB:         gdb,
		GenID:      node,
		Cookies:    session.NewManager(cfg),
		Sessions:   session.NewStore(gdb, node),
		UserSvc:    userSvc,
		Resolver:   resolver,
		CreditSvc:  creditSvc,
		OplogSvc:   oplogSvc,
		BillingSvc: billingSvc,
		PDFEngine:  pdfengine.New(log),
		Limits:     limits,
		AuthzSvc:   &stubAuthz{allowed: map[string]bool{}},
	})
	return &testServer{Server: srv, db: gdb}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any) *http.Request {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == session.DefaultCookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestSignupLoginLogout(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(jsonRequest(http.MethodPost, "/v1/auth/signup", SignupRequest{
		Email: "pat@example.com", Password: "hunter22",
	}))
	require.Equal(t, http.StatusCreated, w.Code)
	cookie := sessionCookie(t, w)

	var created UserView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "pat@example.com", created.Email)
	assert.Equal(t, "free", created.SubscriptionPlan)

	// Session cookie works against /v1/me.
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	// Duplicate email conflicts.
	w = ts.do(jsonRequest(http.MethodPost, "/v1/auth/signup", SignupRequest{
		Email: "pat@example.com", Password: "hunter22",
	}))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Wrong password rejected.
	w = ts.do(jsonRequest(http.MethodPost, "/v1/auth/login", LoginRequest{
		Email: "pat@example.com", Password: "wrong-password",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Logout revokes the session server side.
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOperationInputValidation(t *testing.T) {
	ts := newTestServer(t)

	t.Run("non multipart body", func(t *testing.T) {
		w := ts.do(jsonRequest(http.MethodPost, "/v1/pdf/merge", gin.H{}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("merge needs at least two files", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("files", "one.pdf")
		require.NoError(t, err)
		_, _ = part.Write([]byte("%PDF-stub"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/pdf/merge", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := ts.do(req)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Error.Errors, 1)
		assert.Equal(t, "too_few_files", resp.Error.Errors[0].Code)
	})

	t.Run("watermark requires text", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("files", "doc.pdf")
		require.NoError(t, err)
		_, _ = part.Write([]byte("%PDF-stub"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/pdf/watermark", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := ts.do(req)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Error.Errors, 1)
		assert.Equal(t, "missing_text", resp.Error.Errors[0].Code)
	})

	t.Run("split rejects bad span", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("span", "zero"))
		part, err := mw.CreateFormFile("files", "doc.pdf")
		require.NoError(t, err)
		_, _ = part.Write([]byte("%PDF-stub"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/pdf/split", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := ts.do(req)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Error.Errors, 1)
		assert.Equal(t, "invalid_span", resp.Error.Errors[0].Code)
	})

	t.Run("corrupt input rejected before transform", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("files", "junk.pdf")
		require.NoError(t, err)
		_, _ = part.Write([]byte("this is not a pdf at all"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/pdf/compress", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := ts.do(req)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "validation_error", resp.Error.Type)
	})
}

func TestExtractClaim(t *testing.T) {
	ts := newTestServer(t)

	newCtx := func(req *http.Request) *gin.Context {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = req
		return c
	}

	t.Run("header wins over cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/pdf/merge", nil)
		req.Header.Set(HeaderPurchase, "otp_HEADER")
		req.AddCookie(&http.Cookie{Name: PurchaseCookieName, Value: "otp_COOKIE"})
		claim := ts.extractClaim(newCtx(req))
		assert.True(t, claim.Present)
		assert.Equal(t, "otp_HEADER", claim.PurchaseID)
	})

	t.Run("cookie fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/pdf/merge", nil)
		req.AddCookie(&http.Cookie{Name: PurchaseCookieName, Value: "otp_COOKIE"})
		claim := ts.extractClaim(newCtx(req))
		assert.True(t, claim.Present)
		assert.Equal(t, "otp_COOKIE", claim.PurchaseID)
	})

	t.Run("absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/pdf/merge", nil)
		claim := ts.extractClaim(newCtx(req))
		assert.False(t, claim.Present)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	ts := newTestServer(t)

	payload := `{"id":"evt_100","type":"checkout.completed","data":{"email":"buyer@example.com","mode":"one_time","amount_total":500,"currency":"usd"}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", bytes.NewReader([]byte(payload)))
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var purchases []creditdomain.OneTimePurchase
	require.NoError(t, ts.db.Find(&purchases).Error)
	require.Len(t, purchases, 1)

	// Redelivery is acknowledged without minting twice.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", bytes.NewReader([]byte(payload)))
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already_processed")

	require.NoError(t, ts.db.Find(&purchases).Error)
	assert.Len(t, purchases, 1)
}

func TestAdminRoutesRequireAuthorization(t *testing.T) {
	ts := newTestServer(t)

	// No session at all.
	w := ts.do(httptest.NewRequest(http.MethodGet, "/admin/analytics/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Signed-in user without the analytics grant.
	w = ts.do(jsonRequest(http.MethodPost, "/v1/auth/signup", SignupRequest{
		Email: "pleb@example.com", Password: "hunter22",
	}))
	require.Equal(t, http.StatusCreated, w.Code)
	cookie := sessionCookie(t, w)

	req := httptest.NewRequest(http.MethodGet, "/admin/analytics/summary", nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Granting the subject flips the answer.
	var user userdomain.User
	require.NoError(t, ts.db.Where("email = ?", "pleb@example.com").First(&user).Error)
	ts.authzSvc.(*stubAuthz).allowed["user:"+user.ID.String()] = true

	req = httptest.NewRequest(http.MethodGet, "/admin/analytics/summary", nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListOperationsRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/v1/operations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"invalid credentials", userdomain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"email taken", userdomain.ErrEmailTaken, http.StatusConflict},
		{"not found", userdomain.ErrNotFound, http.StatusNotFound},
		{"unknown provider", billingdomain.ErrInvalidProvider, http.StatusNotFound},
		{"corrupt pdf", pdfengine.ErrCorrupt, http.StatusBadRequest},
		{"encrypted pdf", pdfengine.ErrEncrypted, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"payload too large", ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"fallthrough", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := mapError(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}
