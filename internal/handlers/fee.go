package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/services"
)

type FeeHandler struct {
	service *services.FeeService
	log     zerolog.Logger
}

func NewFeeHandler(service *services.FeeService, log zerolog.Logger) *FeeHandler {
	return &FeeHandler{service: service, log: log.With().Str("handler", "fee").Logger()}
}

type collectRequest struct {
	AdmissionNo string          `json:"admissionNo" validate:"required,notblank"`
	Mode        string          `json:"mode" validate:"required,notblank"`
	AmountPaid  decimal.Decimal `json:"amountPaid"`
	Discount    decimal.Decimal `json:"discount"`
	Fine        decimal.Decimal `json:"fine"`
	FeesGroup   string          `json:"feesGroup"`
	FeesCode    string          `json:"feesCode"`
	Section     string          `json:"section" validate:"required,notblank"`
	Class       string          `json:"class" validate:"required,notblank"`
	Semester    string          `json:"semester" validate:"required,notblank"`
}

type editRequest struct {
	Class      string          `json:"class" validate:"required,notblank"`
	Section    string          `json:"section" validate:"required,notblank"`
	Semester   string          `json:"semester" validate:"required,notblank"`
	Discount   decimal.Decimal `json:"discount"`
	Fine       decimal.Decimal `json:"fine"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Mode       string          `json:"mode" validate:"required,notblank"`
}

func studentIDFrom(r *http.Request) (primitive.ObjectID, error) {
	raw := mux.Vars(r)["studentId"]
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, &ledger.ValidationError{Field: "studentId", Value: raw, Message: "must be a valid object id"}
	}
	return id, nil
}

// audit records which staff member made a fee change.
func (h *FeeHandler) audit(r *http.Request, msg string, rec *models.FeeRecord) {
	ev := h.log.Info().Str("payment_id", rec.PaymentID).Str("status", string(rec.Status))
	if claims, ok := ClaimsFrom(r.Context()); ok {
		ev = ev.Str("staff", claims.Email).Str("role", claims.Role)
	}
	ev.Msg(msg)
}

// Collect handles POST /fee/collect/{studentId}.
func (h *FeeHandler) Collect(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFrom(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req collectRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	sem, err := ledger.ParseSemester(req.Semester)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	mode, err := ledger.ParsePaymentMode(req.Mode)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	rec, err := h.service.Collect(r.Context(), services.CollectInput{
		StudentID:   studentID,
		AdmissionNo: strings.TrimSpace(req.AdmissionNo),
		Class:       strings.TrimSpace(req.Class),
		Section:     strings.TrimSpace(req.Section),
		FeesGroup:   req.FeesGroup,
		FeesCode:    req.FeesCode,
		Semester:    sem,
		Mode:        mode,
		AmountPaid:  req.AmountPaid,
		Discount:    req.Discount,
		Fine:        req.Fine,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.audit(r, "Payment recorded", rec)
	writeJSON(w, http.StatusOK, "fee collected", rec)
}

// Edit handles PUT /fee/edit/{studentId}.
func (h *FeeHandler) Edit(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFrom(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req editRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	sem, err := ledger.ParseSemester(req.Semester)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	mode, err := ledger.ParsePaymentMode(req.Mode)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	rec, err := h.service.Edit(r.Context(), services.EditInput{
		StudentID:  studentID,
		Class:      strings.TrimSpace(req.Class),
		Section:    strings.TrimSpace(req.Section),
		Semester:   sem,
		Mode:       mode,
		AmountPaid: req.AmountPaid,
		Discount:   req.Discount,
		Fine:       req.Fine,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.audit(r, "Fee record edited", rec)
	writeJSON(w, http.StatusOK, "fee record updated", rec)
}

// Overview handles GET /fee?class=&section=.
func (h *FeeHandler) Overview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	overview, err := h.service.Overview(r.Context(), strings.TrimSpace(q.Get("class")), strings.TrimSpace(q.Get("section")))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "fee overview", overview)
}

// Search handles GET /fee/search?paymentId=.
func (h *FeeHandler) Search(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.FindByPaymentID(r.Context(), r.URL.Query().Get("paymentId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "fee record found", rec)
}

// ListByStudent handles GET /fee/student/{studentId}.
func (h *FeeHandler) ListByStudent(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFrom(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	records, err := h.service.ListByStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if records == nil {
		records = []models.FeeRecord{}
	}
	writeJSON(w, http.StatusOK, "fee records", records)
}

// Sync handles POST /fee/sync/{studentId}.
func (h *FeeHandler) Sync(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFrom(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	status, err := h.service.SyncStudentFeeStatus(r.Context(), studentID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "student fee status synced", map[string]interface{}{
		"studentId": studentID.Hex(),
		"feeStatus": status,
	})
}

// Structure handles GET /fee/structure.
func (h *FeeHandler) Structure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "fee structure", h.service.Structure().Table())
}
