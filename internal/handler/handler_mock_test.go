package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/special-week-api/internal/dto"
	internalmiddleware "github.com/noah-isme/special-week-api/internal/middleware"
	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/service"
)

type allocationServiceMock struct {
	preview     *dto.AllocationResult
	run         *models.AllocationRun
	runs        []models.AllocationRun
	err         error
	requestedBy string
	query       dto.ListRunsQuery
}

func (m *allocationServiceMock) Preview(ctx context.Context) (*dto.AllocationResult, error) {
	return m.preview, m.err
}

func (m *allocationServiceMock) Enqueue(ctx context.Context, requestedBy string) (*models.AllocationRun, error) {
	m.requestedBy = requestedBy
	return m.run, m.err
}

func (m *allocationServiceMock) GetRun(ctx context.Context, id string) (*models.AllocationRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.AllocationRun{ID: id, Status: models.AllocationRunSucceeded}, nil
}

func (m *allocationServiceMock) ListRuns(ctx context.Context, query dto.ListRunsQuery) ([]models.AllocationRun, error) {
	m.query = query
	return m.runs, m.err
}

type placementServiceMock struct {
	created   dto.CreatePlacementRequest
	query     dto.PlacementQuery
	placement *models.Placement
	items     []models.PlacementDetail
	deleted   string
	err       error
}

func (m *placementServiceMock) Create(ctx context.Context, req dto.CreatePlacementRequest) (*models.Placement, error) {
	m.created = req
	return m.placement, m.err
}

func (m *placementServiceMock) Delete(ctx context.Context, id string) (*dto.DeletePlacementResult, error) {
	m.deleted = id
	if m.err != nil {
		return nil, m.err
	}
	return &dto.DeletePlacementResult{PlacementID: id, CancelledEnrollments: 2}, nil
}

func (m *placementServiceMock) List(ctx context.Context, query dto.PlacementQuery) ([]models.PlacementDetail, error) {
	m.query = query
	return m.items, m.err
}

type exporterMock struct {
	query dto.ExportTimetableQuery
	file  *service.ExportFile
	err   error
}

func (m *exporterMock) Export(ctx context.Context, query dto.ExportTimetableQuery) (*service.ExportFile, error) {
	m.query = query
	return m.file, m.err
}

type enrollmentServiceMock struct {
	req              dto.EnrollRequest
	actor            dto.EnrollmentActor
	cancelled        string
	includeCancelled bool
	studentID        string
	err              error
}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, req dto.EnrollRequest, actor dto.EnrollmentActor) (*models.Enrollment, error) {
	m.req = req
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &models.Enrollment{ID: "e1", StudentID: req.StudentID, PlacementID: req.PlacementID, Status: models.EnrollmentStatusConfirmed}, nil
}

func (m *enrollmentServiceMock) Cancel(ctx context.Context, id string, actor dto.EnrollmentActor) error {
	m.cancelled = id
	m.actor = actor
	return m.err
}

func (m *enrollmentServiceMock) ListByStudent(ctx context.Context, studentID string, includeCancelled bool, actor dto.EnrollmentActor) ([]models.EnrollmentDetail, error) {
	m.studentID = studentID
	m.includeCancelled = includeCancelled
	m.actor = actor
	return []models.EnrollmentDetail{}, m.err
}

// testRouter authenticates every request as claims, or leaves it anonymous when claims is nil.
func testRouter(claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(internalmiddleware.ContextUserKey, claims)
		}
		c.Next()
	})
	return router
}

func perform(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

var (
	adminClaims   = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	studentClaims = &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	teacherClaims = &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
)
