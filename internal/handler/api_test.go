package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/middleware"
	"github.com/anoirbs/hotel-sub000/pkg/response"
)

const (
	adminEmail    = "admin@hotel.test"
	adminPassword = "admin-password"
	webhookSecret = "whsec_test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testAPI is the whole API over memory stores and the mock gateway
type testAPI struct {
	router     *gin.Engine
	gw         *gateway.MockGateway
	bookings   *repository.MemoryBookingRepository
	rooms      *repository.MemoryRoomRepository
	reconciler service.Reconciler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	bookingRepo := repository.NewMemoryBookingRepository()
	roomRepo := repository.NewMemoryRoomRepository()
	userRepo := repository.NewMemoryUserRepository()
	gw := gateway.NewMockGateway(&gateway.MockGatewayConfig{})
	tokens := middleware.NewTokenIssuer("test-secret", "hotel-test", time.Hour)

	availability := service.NewAvailabilityChecker(bookingRepo)
	publisher := service.NewNoOpEventPublisher()
	reconciler := service.NewReconciler(bookingRepo, roomRepo, availability, gw, publisher, nil)
	bookingSvc := service.NewBookingService(bookingRepo, roomRepo, availability, publisher, nil)
	roomSvc := service.NewRoomService(roomRepo, availability)
	authSvc := service.NewAuthService(userRepo, tokens, &service.AuthServiceConfig{BcryptCost: bcrypt.MinCost})
	require.NoError(t, authSvc.EnsureAdmin(context.Background(), adminEmail, adminPassword, "Admin"))

	r := NewEngine(&EngineConfig{ServiceName: "hotel-test", Logger: logger.Get()})
	routes := &Routes{
		Auth:     NewAuthHandler(authSvc),
		Rooms:    NewRoomHandler(roomSvc),
		Bookings: NewBookingHandler(service.NewPaymentSessionService(roomRepo, availability, gw, nil), reconciler, bookingSvc),
		Admin:    NewAdminHandler(roomSvc, bookingSvc),
		Webhook:  NewWebhookHandler(reconciler, webhookSecret),
		Health:   NewHealthHandler(Component{Name: "database"}),
		Tokens:   tokens,
	}
	routes.Register(r)

	return &testAPI{router: r, gw: gw, bookings: bookingRepo, rooms: roomRepo, reconciler: reconciler}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Email: email, Password: "password123", Name: "Guest",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.AuthResponse](t, w).AccessToken
}

func (a *testAPI) adminToken(t *testing.T) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: adminEmail, Password: adminPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[dto.AuthResponse](t, w).AccessToken
}

func (a *testAPI) createRoom(t *testing.T, number string, price float64) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/admin/rooms", a.adminToken(t), dto.CreateRoomRequest{
		Number: number, Name: "Room " + number, Type: "double", Price: price, Capacity: 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.RoomResponse](t, w).ID
}

func (a *testAPI) checkout(t *testing.T, token, roomID, in, out string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/bookings/checkout", token, dto.CheckoutRequest{
		RoomID: roomID, CheckIn: in, CheckOut: out, GuestName: "Ada", GuestEmail: "ada@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.CheckoutResponse](t, w).SessionReference
}

func TestAPI_CheckoutConfirmReplay(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "ada@example.com")
	roomID := api.createRoom(t, "101", 100)

	ref := api.checkout(t, token, roomID, "2031-03-01", "2031-03-04")

	w := api.do(t, http.MethodPost, "/api/v1/confirm", token, gin.H{"session_reference": ref})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, response.CodePaymentRequired, decode[response.ErrorBody](t, w).Code)

	require.NoError(t, api.gw.MarkPaid(ref))

	w = api.do(t, http.MethodPost, "/api/v1/confirm", token, gin.H{"session_reference": ref})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[dto.BookingResponse](t, w)
	assert.Equal(t, 300.0, first.TotalPrice)
	assert.Equal(t, 3, first.Nights)
	assert.Equal(t, "confirmed", first.Status)
	assert.Equal(t, ref, first.PaymentReference)

	// the camel case field is accepted too and replays the same booking
	w = api.do(t, http.MethodPost, "/api/v1/confirm", token, gin.H{"sessionReference": ref})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, first.ID, decode[dto.BookingResponse](t, w).ID)

	w = api.do(t, http.MethodGet, "/api/v1/bookings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.BookingListResponse](t, w).Bookings, 1)
}

func TestAPI_ConfirmRejections(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register(t, "owner@example.com")
	other := api.register(t, "other@example.com")
	roomID := api.createRoom(t, "102", 80)

	ref := api.checkout(t, owner, roomID, "2031-05-01", "2031-05-03")
	require.NoError(t, api.gw.MarkPaid(ref))

	w := api.do(t, http.MethodPost, "/api/v1/confirm", "", gin.H{"session_reference": ref})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/confirm", owner, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/confirm", other, gin.H{"session_reference": ref})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/confirm", owner, gin.H{"session_reference": "cs_missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ConfirmConflictRequiresRefund(t *testing.T) {
	api := newTestAPI(t)
	first := api.register(t, "first@example.com")
	second := api.register(t, "second@example.com")
	roomID := api.createRoom(t, "103", 120)

	// both customers pay for overlapping stays before either confirms
	refA := api.checkout(t, first, roomID, "2031-06-01", "2031-06-05")
	refB := api.checkout(t, second, roomID, "2031-06-03", "2031-06-06")
	require.NoError(t, api.gw.MarkPaid(refA))
	require.NoError(t, api.gw.MarkPaid(refB))

	w := api.do(t, http.MethodPost, "/api/v1/confirm", first, gin.H{"session_reference": refA})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/confirm", second, gin.H{"session_reference": refB})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[response.ErrorBody](t, w)
	assert.Equal(t, response.CodeConflict, body.Code)
	assert.True(t, body.RefundRequired)
	assert.Equal(t, refB, body.PaymentReference)

	// checkout for a taken range fails before any payment
	w = api.do(t, http.MethodPost, "/api/v1/bookings/checkout", second, dto.CheckoutRequest{
		RoomID: roomID, CheckIn: "2031-06-02", CheckOut: "2031-06-04", GuestName: "B", GuestEmail: "b@example.com",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, decode[response.ErrorBody](t, w).RefundRequired)
}

func TestAPI_CheckoutValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "v@example.com")
	roomID := api.createRoom(t, "104", 90)

	tests := []struct {
		name   string
		body   dto.CheckoutRequest
		status int
	}{
		{"missing fields", dto.CheckoutRequest{RoomID: roomID}, http.StatusBadRequest},
		{"reversed dates", dto.CheckoutRequest{RoomID: roomID, CheckIn: "2031-01-05", CheckOut: "2031-01-01", GuestName: "A", GuestEmail: "a@example.com"}, http.StatusBadRequest},
		{"bad date", dto.CheckoutRequest{RoomID: roomID, CheckIn: "01/05/2031", CheckOut: "2031-01-08", GuestName: "A", GuestEmail: "a@example.com"}, http.StatusBadRequest},
		{"unknown room", dto.CheckoutRequest{RoomID: "nope", CheckIn: "2031-01-05", CheckOut: "2031-01-08", GuestName: "A", GuestEmail: "a@example.com"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/bookings/checkout", token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestAPI_BookingLifecycle(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register(t, "life@example.com")
	stranger := api.register(t, "stranger@example.com")
	admin := api.adminToken(t)
	roomID := api.createRoom(t, "105", 50)

	ref := api.checkout(t, owner, roomID, "2031-07-01", "2031-07-03")
	require.NoError(t, api.gw.MarkPaid(ref))
	w := api.do(t, http.MethodPost, "/api/v1/confirm", owner, gin.H{"session_reference": ref})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[dto.BookingResponse](t, w).ID

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/v1/bookings/"+id, stranger, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/bookings/"+id, admin, nil).Code)

	w = api.do(t, http.MethodPatch, "/api/v1/admin/bookings/"+id+"/dates", admin, dto.UpdateDatesRequest{
		CheckIn: "2031-07-02", CheckOut: "2031-07-06",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 200.0, decode[dto.BookingResponse](t, w).TotalPrice)

	w = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[dto.BookingResponse](t, w).Status)

	w = api.do(t, http.MethodPost, "/api/v1/admin/bookings/"+id+"/complete", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/admin/bookings?status=cancelled", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.BookingListResponse](t, w).Bookings, 1)
}

func TestAPI_AdminRoutesRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	customer := api.register(t, "c@example.com")

	w := api.do(t, http.MethodPost, "/api/v1/admin/rooms", customer, dto.CreateRoomRequest{
		Number: "1", Name: "x", Type: "single", Price: 10, Capacity: 1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/v1/admin/bookings", "", nil).Code)
}

func TestAPI_Rooms(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)
	open := api.createRoom(t, "201", 100)
	closed := api.createRoom(t, "202", 100)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/v1/admin/rooms/"+closed, admin, nil).Code)

	w := api.do(t, http.MethodGet, "/api/v1/rooms", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rooms := decode[dto.RoomListResponse](t, w).Rooms
	require.Len(t, rooms, 1)
	assert.Equal(t, open, rooms[0].ID)

	w = api.do(t, http.MethodGet, "/api/v1/admin/rooms", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.RoomListResponse](t, w).Rooms, 2)

	price := 150.0
	w = api.do(t, http.MethodPut, "/api/v1/admin/rooms/"+open, admin, dto.UpdateRoomRequest{Price: &price})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 150.0, decode[dto.RoomResponse](t, w).Price)

	w = api.do(t, http.MethodGet, "/api/v1/rooms/"+open+"/availability?check_in=2031-08-01&check_out=2031-08-03", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.AvailabilityResponse](t, w).Available)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/v1/rooms/"+open+"/availability", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/v1/rooms/missing", "", nil).Code)
}

func TestAPI_Auth(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "dup@example.com")

	w := api.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Email: "dup@example.com", Password: "password123", Name: "Again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "dup@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "short@example.com", "password": "123", "name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health", "", nil).Code)

	w := api.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ready := decode[ReadyResponse](t, w)
	assert.Equal(t, "not configured", ready.Components["database"])
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return domain.ErrUnauthorized }

func TestReady_Unhealthy(t *testing.T) {
	r := gin.New()
	h := NewHealthHandler(Component{Name: "redis", Check: failingCheck{}})
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode[ReadyResponse](t, w).Components["redis"], "unhealthy")
}
