package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kendall-kelly/jersey-repair-api/flow"
	"github.com/kendall-kelly/jersey-repair-api/middleware"
	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/kendall-kelly/jersey-repair-api/panels"
	"github.com/kendall-kelly/jersey-repair-api/services"
	"github.com/kendall-kelly/jersey-repair-api/store"
)

const (
	testWebhookSecret = "whsec_test"
	testAdminScope    = "admin:orders"
	customerID        = "auth0|customer"
	adminID           = "auth0|admin"
)

var adminHeaders = map[string]string{"X-Test-User": adminID, "X-Test-Scope": testAdminScope}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	store    *store.Store
	flow     *flow.Flow
	registry *panels.Registry
	images   *services.MockImageService
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// setupMockAuth0Server creates a mock HTTP server that simulates Auth0's /userinfo endpoint
func setupMockAuth0Server(userInfoMap map[string]*services.Auth0UserInfo) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userInfo, exists := userInfoMap[token]
		if !exists {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userInfo)
	}))
}

// mockAuth stands in for the JWT middleware. The identity comes from test headers.
func mockAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader("X-Test-User")
		if user == "" {
			user = customerID
		}
		claims := &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: user},
			CustomClaims:     &middleware.CustomClaims{Scope: c.GetHeader("X-Test-Scope")},
		}
		middleware.SetIdentity(c, claims, "mock-token")
		c.Next()
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	auth0 := setupMockAuth0Server(map[string]*services.Auth0UserInfo{
		"mock-token": {Sub: customerID, Name: "Profile Customer", Email: "profile@example.com"},
	})
	t.Cleanup(auth0.Close)

	db := setupTestDB(t)
	orders := store.New(db, nil, nil)
	catalog, err := flow.DefaultCatalog()
	require.NoError(t, err)
	images := services.NewMockImageService()
	f := flow.New(orders, catalog, nil,
		flow.WithProfiles(services.NewAuth0Service(auth0.URL)),
		flow.WithImages(images))
	registry := panels.NewRegistry(orders, nil)

	r := &Router{
		Health:     NewHealthController(db),
		Flow:       NewFlowController(f, images, nil),
		Panels:     NewPanelController(registry, nil),
		Orders:     NewAdminOrderController(orders, images, nil),
		Payments:   NewPaymentController(f, testWebhookSecret, nil),
		Uploads:    NewUploadController(t.TempDir()),
		Auth:       mockAuth(),
		AdminScope: middleware.RequireScope(testAdminScope),
	}

	return &testEnv{
		router:   r.Engine(),
		db:       db,
		store:    orders,
		flow:     f,
		registry: registry,
		images:   images,
	}
}

// doJSON sends a JSON request and decodes the envelope
func (env *testEnv) doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return env.serve(t, req)
}

func (env *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

// multipartPhotos builds a POST /flow/photos request
func multipartPhotos(t *testing.T, session string, files map[string][]byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("photos", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flow/photos", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(SessionHeader, session)
	return req
}

func session(id string) map[string]string {
	return map[string]string{SessionHeader: id}
}

func errorCode(resp map[string]any) string {
	errBody, _ := resp["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func dataMap(resp map[string]any) map[string]any {
	data, _ := resp["data"].(map[string]any)
	return data
}

// scheduledOrder drives a session through the flow up to payment
func (env *testEnv) scheduledOrder(t *testing.T, sessionID string, inbound models.InboundMethod) models.Order {
	t.Helper()
	ctx := context.Background()
	sess := flow.Session{ID: sessionID, OwnerID: customerID}
	_, _, err := env.flow.Start(ctx, sess)
	require.NoError(t, err)
	_, err = env.flow.AddPhotos(ctx, sess, []string{"jerseys/" + sessionID + "/front.jpg"})
	require.NoError(t, err)
	_, err = env.flow.SelectRepair(ctx, sess, flow.QuoteRequest{RepairType: "tear"})
	require.NoError(t, err)
	order, err := env.flow.Schedule(ctx, sess, flow.ScheduleRequest{
		ContactInfo:    models.ContactInfo{Name: "Sam Keeper", Email: "sam@example.com", Address: "1 Club Road"},
		DeliveryMethod: inbound,
	})
	require.NoError(t, err)
	return order
}

// paidOrder is a scheduled order whose payment was confirmed
func (env *testEnv) paidOrder(t *testing.T, sessionID string, inbound models.InboundMethod) models.Order {
	t.Helper()
	order := env.scheduledOrder(t, sessionID, inbound)
	paid, _, err := env.flow.ConfirmPayment(context.Background(), flow.PaymentConfirmation{OrderID: order.ID, Reference: "pi_" + sessionID})
	require.NoError(t, err)
	return paid
}
