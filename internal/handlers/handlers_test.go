package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/db/memdb"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/services"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type testServer struct {
	router     http.Handler
	studentID  primitive.ObjectID
	adminToken string
	deskToken  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	fees := memdb.NewFeeStore()
	students := memdb.NewStudentStore()
	admissions := memdb.NewAdmissionStore()
	studentID := students.Put(models.Student{Name: "Asha", AdmissionNo: "ADM-1", Class: "10", Section: "A"})
	admissions.Put(models.Admission{AdmissionNo: "ADM-1", StudentID: studentID, AdmissionFee: decimal.NewFromInt(2000)})

	feeSvc := services.NewFeeService(fees, students, admissions, services.FeeOptions{}, log)
	staffSvc := services.NewStaffService(memdb.NewStaffStore(), "handler-secret", time.Hour, log)
	require.NoError(t, staffSvc.EnsureAdmin(ctx, "admin@school.test", "admin-pw"))
	_, err := staffSvc.CreateStaff(ctx, "Desk", "desk@school.test", "desk-pw", models.RoleAccountant)
	require.NoError(t, err)

	adminToken, _, err := staffSvc.Login(ctx, "admin@school.test", "admin-pw")
	require.NoError(t, err)
	deskToken, _, err := staffSvc.Login(ctx, "desk@school.test", "desk-pw")
	require.NoError(t, err)

	return &testServer{
		router:     NewRouter(NewFeeHandler(feeSvc, log), NewAuthHandler(staffSvc, log), log),
		studentID:  studentID,
		adminToken: adminToken,
		deskToken:  deskToken,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
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
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
		assert.Equal(t, rr.Code, env.Status)
	}
	return rr, env
}

func collectBody(semester string, amount int) map[string]interface{} {
	return map[string]interface{}{
		"admissionNo": "ADM-1",
		"mode":        "Cash",
		"amountPaid":  amount,
		"discount":    0,
		"fine":        0,
		"feesGroup":   "regular",
		"feesCode":    "T10",
		"section":     "A",
		"class":       "10",
		"semester":    semester,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr, _ := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestFeeRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, http.MethodGet, "/fee/structure", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, env.Error)

	rr, _ = s.do(t, http.MethodGet, "/fee/structure", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = s.do(t, http.MethodGet, "/fee/structure", s.deskToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStaffRoutes_AdminOnly(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/auth/staff", s.deskToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, env := s.do(t, http.MethodPost, "/auth/staff", s.adminToken, map[string]string{
		"fullname": "Ravi",
		"email":    "ravi@school.test",
		"password": "ravi-pw",
		"role":     "accountant",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, string(env.Data), "password")

	rr, _ = s.do(t, http.MethodPost, "/auth/staff", s.adminToken, map[string]string{
		"fullname": "Ravi",
		"email":    "ravi@school.test",
		"password": "ravi-pw",
		"role":     "accountant",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, env = s.do(t, http.MethodPost, "/auth/staff", s.adminToken, map[string]string{
		"fullname": "X",
		"email":    "not-an-email",
		"password": "pw",
		"role":     "janitor",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(env.Error, &fields))
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "role")

	rr, env = s.do(t, http.MethodGet, "/auth/staff", s.adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var staff []models.Staff
	require.NoError(t, json.Unmarshal(env.Data, &staff))
	assert.Len(t, staff, 3)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "desk@school.test", "password": "desk-pw"})
	require.Equal(t, http.StatusOK, rr.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Token)

	rr, _ = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "desk@school.test", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCollectAndQuery(t *testing.T) {
	s := newTestServer(t)
	path := "/fee/collect/" + s.studentID.Hex()

	rr, env := s.do(t, http.MethodPost, path, s.deskToken, collectBody("sem1", 6000))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, string(env.Error), `"total":"6000.00"`)

	rr, env = s.do(t, http.MethodPost, path, s.deskToken, collectBody("sem1", 4000))
	require.Equal(t, http.StatusOK, rr.Code)
	var rec models.FeeRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "6000", rec.Sem1.Paid.String())
	assert.Equal(t, models.StatusPaid, rec.Sem1.Status)
	assert.Equal(t, models.StatusPartial, rec.Status)
	assert.Equal(t, models.ModeCash, rec.Mode)

	rr, env = s.do(t, http.MethodGet, "/fee/search?paymentId="+rec.PaymentID, s.deskToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var found models.FeeRecord
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, rec.ID, found.ID)

	rr, _ = s.do(t, http.MethodGet, "/fee/search?paymentId=missing", s.deskToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr, _ = s.do(t, http.MethodGet, "/fee/search", s.deskToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, env = s.do(t, http.MethodGet, "/fee?class=10&section=A", s.deskToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var overview services.ClassOverview
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	assert.Equal(t, 1, overview.Students)
	assert.Equal(t, 1, overview.Partial)

	rr, _ = s.do(t, http.MethodGet, "/fee", s.deskToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, env = s.do(t, http.MethodGet, "/fee/student/"+s.studentID.Hex(), s.deskToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var records []models.FeeRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 1)

	rr, env = s.do(t, http.MethodPost, "/fee/sync/"+s.studentID.Hex(), s.deskToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, string(env.Data), `"feeStatus":"Partial"`)
}

func TestCollect_BadRequests(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodPost, "/fee/collect/not-an-id", s.deskToken, collectBody("sem1", 100))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	path := "/fee/collect/" + s.studentID.Hex()
	body := collectBody("sem3", 100)
	rr, _ = s.do(t, http.MethodPost, path, s.deskToken, body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body = collectBody("sem1", 100)
	body["mode"] = "barter"
	rr, _ = s.do(t, http.MethodPost, path, s.deskToken, body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body = collectBody("sem1", 100)
	body["class"] = "3"
	rr, _ = s.do(t, http.MethodPost, path, s.deskToken, body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body = collectBody("sem1", 100)
	delete(body, "section")
	rr, env := s.do(t, http.MethodPost, path, s.deskToken, body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, string(env.Error), "section")

	rr, _ = s.do(t, http.MethodPost, "/fee/collect/"+primitive.NewObjectID().Hex(), s.deskToken, collectBody("sem1", 100))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCollect_IgnoresExtraFields(t *testing.T) {
	s := newTestServer(t)
	id := s.studentID.Hex()

	body := collectBody("sem1", 4000)
	body["studentId"] = id
	body["studentName"] = "Asha"
	rr, env := s.do(t, http.MethodPost, "/fee/collect/"+id, s.deskToken, body)
	require.Equal(t, http.StatusOK, rr.Code, string(env.Error))
	var rec models.FeeRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "6000", rec.Sem1.Paid.String())

	edit := map[string]interface{}{
		"studentId": id, "class": "10", "section": "A", "semester": "sem2",
		"discount": 0, "fine": 0, "amountPaid": 5000, "mode": "cash",
	}
	rr, env = s.do(t, http.MethodPut, "/fee/edit/"+id, s.deskToken, edit)
	require.Equal(t, http.StatusOK, rr.Code, string(env.Error))
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, models.StatusPaid, rec.Status)
}

func TestEdit(t *testing.T) {
	s := newTestServer(t)
	id := s.studentID.Hex()

	edit := map[string]interface{}{
		"class": "10", "section": "A", "semester": "sem2",
		"discount": 500, "fine": 0, "amountPaid": 4500, "mode": "upi",
	}
	rr, _ := s.do(t, http.MethodPut, "/fee/edit/"+id, s.deskToken, edit)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = s.do(t, http.MethodPost, "/fee/collect/"+id, s.deskToken, collectBody("sem2", 1000))
	require.Equal(t, http.StatusOK, rr.Code)

	rr, env := s.do(t, http.MethodPut, "/fee/edit/"+id, s.deskToken, edit)
	require.Equal(t, http.StatusOK, rr.Code)
	var rec models.FeeRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "4500", rec.Sem2.Paid.String())
	assert.Equal(t, models.StatusPaid, rec.Sem2.Status)
	assert.Equal(t, models.ModeUPI, rec.Mode)
}

func TestWriteError_AuthErrors(t *testing.T) {
	for err, want := range map[error]int{
		fmt.Errorf("%w: bad token", services.ErrUnauthorized): http.StatusUnauthorized,
		fmt.Errorf("%w: wrong role", services.ErrForbidden):   http.StatusForbidden,
	} {
		rr := httptest.NewRecorder()
		writeError(rr, zerolog.Nop(), err)
		assert.Equal(t, want, rr.Code, err.Error())
	}
}

func TestWriteError_StatusSync(t *testing.T) {
	rec := &models.FeeRecord{PaymentID: "pay-9", Status: models.StatusPaid}
	rr := httptest.NewRecorder()
	writeError(rr, zerolog.Nop(), &services.StatusSyncError{Record: rec, Err: errors.New("students offline")})

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Contains(t, string(env.Data), `"paymentId":"pay-9"`)
	assert.Contains(t, string(env.Error), "students offline")
}
