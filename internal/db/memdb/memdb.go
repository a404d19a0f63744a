// Package memdb implements the repositories in process memory. It enforces
// the same unique keys and version checks as the MongoDB stores and backs the
// memory storage mode and the service tests.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

type feeKey struct {
	studentID primitive.ObjectID
	class     string
	section   string
}

// FeeStore is an in-memory fee record repository.
type FeeStore struct {
	mu      sync.RWMutex
	records map[primitive.ObjectID]models.FeeRecord
	byKey   map[feeKey]primitive.ObjectID
}

func NewFeeStore() *FeeStore {
	return &FeeStore{
		records: make(map[primitive.ObjectID]models.FeeRecord),
		byKey:   make(map[feeKey]primitive.ObjectID),
	}
}

func keyOf(rec *models.FeeRecord) feeKey {
	return feeKey{studentID: rec.StudentID, class: rec.Class, section: rec.Section}
}

func (s *FeeStore) Insert(_ context.Context, rec *models.FeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(rec)
	if _, ok := s.byKey[key]; ok {
		return ledger.ErrDuplicateFeeRecord
	}
	for _, r := range s.records {
		if rec.PaymentID != "" && r.PaymentID == rec.PaymentID {
			return ledger.ErrDuplicateFeeRecord
		}
	}
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	s.records[rec.ID] = *rec
	s.byKey[key] = rec.ID
	return nil
}

func (s *FeeStore) Update(_ context.Context, rec *models.FeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.ID]
	if !ok || cur.Version != rec.Version {
		return ledger.ErrVersionConflict
	}
	next := *rec
	next.Version++
	if keyOf(&cur) != keyOf(&next) {
		delete(s.byKey, keyOf(&cur))
		s.byKey[keyOf(&next)] = next.ID
	}
	s.records[rec.ID] = next
	rec.Version = next.Version
	return nil
}

func (s *FeeStore) FindByStudentClassSection(_ context.Context, studentID primitive.ObjectID, class, section string) (*models.FeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[feeKey{studentID: studentID, class: class, section: section}]
	if !ok {
		return nil, ledger.ErrFeeRecordNotFound
	}
	rec := s.records[id]
	return &rec, nil
}

func (s *FeeStore) FindByPaymentID(_ context.Context, paymentID string) (*models.FeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.PaymentID == paymentID {
			rec := r
			return &rec, nil
		}
	}
	return nil, ledger.ErrFeeRecordNotFound
}

func (s *FeeStore) ListByStudents(_ context.Context, studentIDs []primitive.ObjectID) ([]models.FeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[primitive.ObjectID]bool, len(studentIDs))
	for _, id := range studentIDs {
		want[id] = true
	}
	out := []models.FeeRecord{}
	for _, r := range s.records {
		if want[r.StudentID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// StudentStore is an in-memory student repository.
type StudentStore struct {
	mu       sync.RWMutex
	students map[primitive.ObjectID]models.Student
}

func NewStudentStore() *StudentStore {
	return &StudentStore{students: make(map[primitive.ObjectID]models.Student)}
}

// Put inserts or replaces a student and returns its id.
func (s *StudentStore) Put(student models.Student) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if student.ID.IsZero() {
		student.ID = primitive.NewObjectID()
	}
	if student.FeeStatus == "" {
		student.FeeStatus = models.StatusUnpaid
	}
	s.students[student.ID] = student
	return student.ID
}

func (s *StudentStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.students[id]
	if !ok {
		return nil, ledger.ErrStudentNotFound
	}
	return &st, nil
}

func (s *StudentStore) ListByClassSection(_ context.Context, class, section string) ([]models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Student{}
	for _, st := range s.students {
		if st.Class == class && (section == "" || st.Section == section) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *StudentStore) UpdateFeeStatus(_ context.Context, id primitive.ObjectID, status models.Status, stamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[id]
	if !ok {
		return ledger.ErrStudentNotFound
	}
	if st.FeeStatusStamp > stamp {
		return ledger.ErrStaleFeeStatus
	}
	st.FeeStatus = status
	st.FeeStatusStamp = stamp
	st.UpdatedAt = time.Now()
	s.students[id] = st
	return nil
}

// AdmissionStore is an in-memory admission repository.
type AdmissionStore struct {
	mu         sync.RWMutex
	admissions map[string]models.Admission
}

func NewAdmissionStore() *AdmissionStore {
	return &AdmissionStore{admissions: make(map[string]models.Admission)}
}

func (s *AdmissionStore) Put(a models.Admission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	s.admissions[a.AdmissionNo] = a
}

func (s *AdmissionStore) FindByAdmissionNo(_ context.Context, admissionNo string) (*models.Admission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.admissions[admissionNo]
	if !ok {
		return nil, ledger.ErrAdmissionNotFound
	}
	return &a, nil
}

// StaffStore is an in-memory staff repository.
type StaffStore struct {
	mu    sync.RWMutex
	staff map[string]models.Staff
}

func NewStaffStore() *StaffStore {
	return &StaffStore{staff: make(map[string]models.Staff)}
}

func (s *StaffStore) Insert(_ context.Context, staff *models.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.staff[staff.Email]; ok {
		return ledger.ErrDuplicateStaff
	}
	if staff.ID.IsZero() {
		staff.ID = primitive.NewObjectID()
	}
	s.staff[staff.Email] = *staff
	return nil
}

func (s *StaffStore) FindByEmail(_ context.Context, email string) (*models.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.staff[email]
	if !ok {
		return nil, ledger.ErrStaffNotFound
	}
	return &st, nil
}

func (s *StaffStore) List(_ context.Context) ([]models.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Staff, 0, len(s.staff))
	for _, st := range s.staff {
		st.HPassword = ""
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
