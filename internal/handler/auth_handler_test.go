package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/service"
	appErrors "github.com/noah-isme/special-week-api/pkg/errors"
)

type authServiceMock struct {
	req models.LoginRequest
	err error
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.LoginResponse{AccessToken: "token", ExpiresIn: 900}, nil
}

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestLogin(t *testing.T) {
	svc := &authServiceMock{}
	h := &AuthHandler{service: svc}
	router := testRouter(nil)
	router.POST("/auth/login", h.Login)

	w := perform(router, http.MethodPost, "/auth/login", `{"email":"admin@school.test","password":"secret"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@school.test", svc.req.Email)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := &AuthHandler{service: &authServiceMock{err: appErrors.ErrInvalidCredentials}}
	router := testRouter(nil)
	router.POST("/auth/login", h.Login)

	w := perform(router, http.MethodPost, "/auth/login", `{"email":"admin@school.test","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe(t *testing.T) {
	h := &AuthHandler{service: &authServiceMock{}}
	router := testRouter(&models.JWTClaims{UserID: "u1", Email: "u1@school.test", Role: models.RoleTeacher})
	router.GET("/auth/me", h.Me)

	w := perform(router, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"TEACHER"`)
}

func TestReadyReflectsDatabase(t *testing.T) {
	router := testRouter(nil)
	router.GET("/ready", NewMetricsHandler(service.NewMetricsService(), pingerStub{}).Ready)
	require.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/ready", "").Code)

	router = testRouter(nil)
	router.GET("/ready", NewMetricsHandler(nil, pingerStub{err: errors.New("down")}).Ready)
	require.Equal(t, http.StatusServiceUnavailable, perform(router, http.MethodGet, "/ready", "").Code)
}

func TestMetricsSnapshotAndPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordEnrollmentRejection("WORKSHOP_FULL")
	h := NewMetricsHandler(metrics, nil)
	router := testRouter(adminClaims)
	router.GET("/metrics", h.Prometheus)
	router.GET("/admin/metrics", h.Snapshot)

	w := perform(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "enrollment_rejections_total")

	w = perform(router, http.MethodGet, "/admin/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enrollment_rejections":1`)
}
