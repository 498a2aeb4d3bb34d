package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/kendall-kelly/jersey-repair-api/changefeed"
	"github.com/kendall-kelly/jersey-repair-api/config"
	"github.com/kendall-kelly/jersey-repair-api/controllers"
	"github.com/kendall-kelly/jersey-repair-api/flow"
	"github.com/kendall-kelly/jersey-repair-api/middleware"
	"github.com/kendall-kelly/jersey-repair-api/notifier"
	"github.com/kendall-kelly/jersey-repair-api/panels"
	"github.com/kendall-kelly/jersey-repair-api/services"
	"github.com/kendall-kelly/jersey-repair-api/store"
	"github.com/kendall-kelly/jersey-repair-api/tests/testutil"
)

const (
	webhookSecret = "whsec_acceptance"
	adminScope    = "admin:orders"
	customerID    = "auth0|customer-1"
	adminID       = "auth0|admin-1"
	adminEmail    = "workshop@example.com"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Applied *bool           `json:"applied"`
	Count   *int            `json:"count"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type orderView struct {
	ID          string   `json:"id"`
	Photos      []string `json:"photos"`
	Price       string   `json:"price"`
	ContactInfo struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"contactInfo"`
	Processing struct {
		Status            string `json:"status"`
		RepairStatus      string `json:"repairStatus"`
		DeliveryMethod    string `json:"deliveryMethod"`
		FulfillmentMethod string `json:"fulfillmentMethod"`
		DropoffStatus     string `json:"dropoffStatus"`
		CollectionStatus  string `json:"collectionStatus"`
	} `json:"processing"`
	Payment struct {
		Status    string `json:"status"`
		Amount    string `json:"amount"`
		Reference string `json:"reference"`
	} `json:"payment"`
}

// OrderAcceptanceTestSuite drives the HTTP API the way the storefront and the
// workshop admin screens do
type OrderAcceptanceTestSuite struct {
	suite.Suite
	server   *httptest.Server
	auth0    *httptest.Server
	mailer   *services.MockMailer
	registry *panels.Registry
	cancel   context.CancelFunc
	done     chan struct{}
}

// SetupSuite runs once before all tests
func (suite *OrderAcceptanceTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	testutil.SetTestEnvironment(suite.T())

	cfg := config.FromEnv()
	suite.Require().NoError(cfg.Validate())
	testutil.RequireTestEnvironment(suite.T())

	suite.auth0 = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testutil.MockToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(services.Auth0UserInfo{Sub: customerID, Name: "Alex Striker", Email: "alex@example.com"})
	}))

	db := testutil.NewTestDB(suite.T())
	hub := changefeed.NewHub(64, nil)
	orders := store.New(db, hub, nil)
	suite.mailer = services.NewMockMailer()
	notify, err := notifier.New(db, suite.mailer, adminEmail, nil)
	suite.Require().NoError(err)
	suite.registry = panels.NewRegistry(orders, nil)

	uploadDir := suite.T().TempDir()
	images := services.NewLocalImageService(uploadDir)
	catalog, err := flow.DefaultCatalog()
	suite.Require().NoError(err)
	customerFlow := flow.New(orders, catalog, nil,
		flow.WithProfiles(services.NewAuth0Service(suite.auth0.URL)),
		flow.WithImages(images))

	router := &controllers.Router{
		Health:     controllers.NewHealthController(db),
		Flow:       controllers.NewFlowController(customerFlow, images, nil),
		Panels:     controllers.NewPanelController(suite.registry, nil),
		Orders:     controllers.NewAdminOrderController(orders, images, nil),
		Payments:   controllers.NewPaymentController(customerFlow, webhookSecret, nil),
		Uploads:    controllers.NewUploadController(uploadDir),
		Auth:       testutil.MockAuth(),
		AdminScope: middleware.RequireScope(adminScope),
	}
	suite.server = httptest.NewServer(router.Handler("jersey-repair-api-acceptance"))

	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.done = make(chan struct{}, 2)
	go func() {
		_ = notify.Run(ctx, hub)
		suite.done <- struct{}{}
	}()
	go func() {
		_ = suite.registry.Run(ctx, hub.Lossy())
		suite.done <- struct{}{}
	}()
	suite.Require().Eventually(func() bool { return hub.Subscribers() == 2 }, 2*time.Second, 10*time.Millisecond)
}

// TearDownSuite runs once after all tests
func (suite *OrderAcceptanceTestSuite) TearDownSuite() {
	suite.cancel()
	for i := 0; i < 2; i++ {
		<-suite.done
	}
	suite.server.Close()
	suite.auth0.Close()
}

func TestOrderAcceptanceTestSuite(t *testing.T) {
	suite.Run(t, new(OrderAcceptanceTestSuite))
}

func (suite *OrderAcceptanceTestSuite) do(req *http.Request, user, scope string) (int, envelope) {
	if user != "" {
		req.Header.Set(testutil.UserHeader, user)
	}
	if scope != "" {
		req.Header.Set(testutil.ScopeHeader, scope)
	}
	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	var env envelope
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (suite *OrderAcceptanceTestSuite) customer(method, path, sessionID string, body any) (int, envelope) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, suite.server.URL+path, reader)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(controllers.SessionHeader, sessionID)
	return suite.do(req, customerID, "")
}

func (suite *OrderAcceptanceTestSuite) admin(method, path string, body any) (int, envelope) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, suite.server.URL+path, reader)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	return suite.do(req, adminID, adminScope)
}

func (suite *OrderAcceptanceTestSuite) uploadPhoto(sessionID, filename string, content []byte) (int, envelope) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("photos", filename)
	suite.Require().NoError(err)
	_, err = part.Write(content)
	suite.Require().NoError(err)
	suite.Require().NoError(writer.Close())

	req, err := http.NewRequest(http.MethodPost, suite.server.URL+"/api/v1/flow/photos", body)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(controllers.SessionHeader, sessionID)
	return suite.do(req, customerID, "")
}

func (suite *OrderAcceptanceTestSuite) pay(orderID, reference string) (int, envelope) {
	raw, err := json.Marshal(map[string]any{"orderId": orderID, "reference": reference, "method": "card"})
	suite.Require().NoError(err)
	req, err := http.NewRequest(http.MethodPost, suite.server.URL+"/api/v1/payments/callback", bytes.NewReader(raw))
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(controllers.SignatureHeader, "sha256="+controllers.Sign([]byte(webhookSecret), raw))
	return suite.do(req, "", "")
}

func (suite *OrderAcceptanceTestSuite) decode(env envelope, v any) {
	suite.Require().NoError(json.Unmarshal(env.Data, v))
}

func (suite *OrderAcceptanceTestSuite) action(panel, orderID, kind string) orderView {
	status, env := suite.admin(http.MethodPost, "/api/v1/admin/panels/"+panel+"/orders/"+orderID+"/actions", map[string]string{"kind": kind})
	suite.Require().Equal(http.StatusOK, status, "%s on %s: %+v", kind, panel, env.Error)
	var detail struct {
		Order orderView `json:"order"`
	}
	suite.decode(env, &detail)
	return detail.Order
}

func (suite *OrderAcceptanceTestSuite) TestDropoffOrderEndToEnd() {
	const session = "acc-dropoff"

	status, env := suite.customer(http.MethodPost, "/api/v1/flow", session, nil)
	suite.Require().Equal(http.StatusCreated, status)
	var order orderView
	suite.decode(env, &order)

	// photos are stored locally and served back to the signed-in caller
	status, env = suite.uploadPhoto(session, "front.png", []byte("png bytes"))
	suite.Require().Equal(http.StatusOK, status, env.Error)
	suite.decode(env, &order)
	suite.Require().Len(order.Photos, 1)
	suite.True(strings.HasPrefix(order.Photos[0], "jerseys/"+session+"/"))

	req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/api/v1/uploads/"+order.Photos[0], nil)
	suite.Require().NoError(err)
	req.Header.Set(testutil.UserHeader, customerID)
	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	photo, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal("image/png", resp.Header.Get("Content-Type"))
	suite.Equal([]byte("png bytes"), photo)

	status, env = suite.customer(http.MethodPut, "/api/v1/flow/quote", session, map[string]string{"repairType": "badge"})
	suite.Require().Equal(http.StatusOK, status, env.Error)

	// name and email come from the identity provider profile
	status, env = suite.customer(http.MethodPut, "/api/v1/flow/schedule", session, map[string]any{
		"deliveryMethod": "dropoff",
	})
	suite.Require().Equal(http.StatusOK, status, env.Error)
	suite.decode(env, &order)
	suite.Equal("Alex Striker", order.ContactInfo.Name)
	suite.Equal("alex@example.com", order.ContactInfo.Email)
	suite.Equal("pickup", order.Processing.FulfillmentMethod)

	status, env = suite.admin(http.MethodPost, "/api/v1/admin/panels/orders/orders/"+order.ID+"/actions", map[string]string{"kind": "route"})
	suite.Equal(http.StatusConflict, status, "unpaid orders can not be routed")
	suite.Equal("INVALID_TRANSITION", env.Error.Code)

	status, env = suite.pay(order.ID, "pi_dropoff")
	suite.Require().Equal(http.StatusOK, status, env.Error)
	suite.True(*env.Applied)
	status, env = suite.pay(order.ID, "pi_dropoff")
	suite.Require().Equal(http.StatusOK, status)
	suite.False(*env.Applied)

	status, _ = suite.customer(http.MethodPut, "/api/v1/flow/quote", session, map[string]string{"repairType": "name"})
	suite.Equal(http.StatusConflict, status, "paid orders are locked for the customer")

	routed := suite.action("orders", order.ID, "route")
	suite.Equal("in_progress", routed.Processing.Status)
	suite.Equal("awaiting_dropoff", routed.Processing.DropoffStatus)

	suite.Eventually(func() bool {
		status, env := suite.admin(http.MethodGet, "/api/v1/admin/panels/dropoff/orders", nil)
		return status == http.StatusOK && env.Count != nil && *env.Count == 1
	}, 2*time.Second, 20*time.Millisecond)

	suite.action("dropoff", order.ID, "advance-dropoff")
	ready := suite.action("repair", order.ID, "complete-repair")
	suite.Equal("awaiting_fulfillment", ready.Processing.Status)
	suite.Equal("awaiting_collection", ready.Processing.CollectionStatus)
	done := suite.action("collection", order.ID, "advance-collection")
	suite.Equal("fulfilled", done.Processing.Status)

	status, env = suite.admin(http.MethodGet, "/api/v1/admin/orders/"+order.ID+"/photos", nil)
	suite.Require().Equal(http.StatusOK, status)
	var photos []controllers.Photo
	suite.decode(env, &photos)
	suite.Require().Len(photos, 1)
	suite.Equal("/api/v1/uploads/"+order.Photos[0], photos[0].URL)

	suite.Eventually(func() bool {
		return len(suite.mailer.SentTo("alex@example.com")) == 3 && len(suite.mailer.SentTo(adminEmail)) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func (suite *OrderAcceptanceTestSuite) TestAbandonedOrder() {
	const session = "acc-abandon"

	status, env := suite.customer(http.MethodPost, "/api/v1/flow", session, nil)
	suite.Require().Equal(http.StatusCreated, status)
	status, env = suite.uploadPhoto(session, "sleeve.jpg", []byte("jpg bytes"))
	suite.Require().Equal(http.StatusOK, status, env.Error)
	var order orderView
	suite.decode(env, &order)

	status, env = suite.customer(http.MethodDelete, "/api/v1/flow", session, nil)
	suite.Require().Equal(http.StatusOK, status)
	suite.True(env.Success)

	status, env = suite.customer(http.MethodGet, "/api/v1/flow", session, nil)
	suite.Equal(http.StatusNotFound, status)
	suite.Equal("ORDER_NOT_FOUND", env.Error.Code)

	status, env = suite.admin(http.MethodGet, "/api/v1/admin/orders/"+order.ID, nil)
	suite.Equal(http.StatusNotFound, status)
}

func (suite *OrderAcceptanceTestSuite) TestAccessControl() {
	req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/api/v1/flow/catalog", nil)
	suite.Require().NoError(err)
	status, env := suite.do(req, "", "")
	suite.Equal(http.StatusUnauthorized, status)
	suite.Equal("INVALID_TOKEN", env.Error.Code)

	req, err = http.NewRequest(http.MethodGet, suite.server.URL+"/api/v1/admin/panels", nil)
	suite.Require().NoError(err)
	status, env = suite.do(req, customerID, "")
	suite.Equal(http.StatusForbidden, status)
	suite.Equal("INSUFFICIENT_SCOPE", env.Error.Code)

	raw := []byte(`{"orderId":"any","reference":"pi_forged"}`)
	req, err = http.NewRequest(http.MethodPost, suite.server.URL+"/api/v1/payments/callback", bytes.NewReader(raw))
	suite.Require().NoError(err)
	req.Header.Set(controllers.SignatureHeader, controllers.Sign([]byte("guessed"), raw))
	status, env = suite.do(req, "", "")
	suite.Equal(http.StatusUnauthorized, status)
	suite.Equal("INVALID_SIGNATURE", env.Error.Code)
}
