package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/db/memdb"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

type feeFixture struct {
	svc        *FeeService
	fees       *memdb.FeeStore
	students   *memdb.StudentStore
	admissions *memdb.AdmissionStore
	studentID  primitive.ObjectID
}

func newFeeFixture(t *testing.T, maxRetries int) *feeFixture {
	t.Helper()
	f := &feeFixture{
		fees:       memdb.NewFeeStore(),
		students:   memdb.NewStudentStore(),
		admissions: memdb.NewAdmissionStore(),
	}
	f.studentID = f.students.Put(models.Student{Name: "Asha", AdmissionNo: "ADM-1", Class: "10", Section: "A"})
	f.admissions.Put(models.Admission{AdmissionNo: "ADM-1", StudentID: f.studentID, AdmissionFee: decimal.NewFromInt(2000)})

	var seq int64
	f.svc = NewFeeService(f.fees, f.students, f.admissions, FeeOptions{
		MaxRetries:   maxRetries,
		Now:          func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) },
		NewPaymentID: func() string { return fmt.Sprintf("pay-%d", atomic.AddInt64(&seq, 1)) },
	}, zerolog.Nop())
	return f
}

func (f *feeFixture) collect(sem models.Semester, amount int64) CollectInput {
	return CollectInput{
		StudentID:   f.studentID,
		AdmissionNo: "ADM-1",
		Class:       "10",
		Section:     "A",
		FeesGroup:   "regular",
		FeesCode:    "T10",
		Semester:    sem,
		Mode:        models.ModeCash,
		AmountPaid:  decimal.NewFromInt(amount),
	}
}

func (f *feeFixture) studentStatus(t *testing.T) models.Status {
	t.Helper()
	st, err := f.students.FindByID(context.Background(), f.studentID)
	require.NoError(t, err)
	return st.FeeStatus
}

func TestCollect_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)

	// B: first call creates the record from scenario A and rejects the payment
	_, err := f.svc.Collect(ctx, f.collect(models.Sem1, 6000))
	require.ErrorIs(t, err, ledger.ErrOverpayment)

	rec, err := f.svc.FindByStudentAndClassSection(ctx, f.studentID, "10", "A")
	require.NoError(t, err)
	assert.Equal(t, "2000", rec.Sem1.Paid.String())
	assert.Equal(t, "6000", rec.Sem1.Balance.String())
	assert.Equal(t, models.StatusUnpaid, rec.Sem1.Status)
	assert.Equal(t, "5000", rec.Sem2.Balance.String())
	assert.Equal(t, "pay-1", rec.PaymentID)
	assert.Equal(t, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), rec.DueDate)

	// C
	rec, err = f.svc.Collect(ctx, f.collect(models.Sem1, 4000))
	require.NoError(t, err)
	assert.Equal(t, "6000", rec.Sem1.Paid.String())
	assert.True(t, rec.Sem1.Balance.IsZero())
	assert.Equal(t, models.StatusPaid, rec.Sem1.Status)
	assert.Equal(t, models.StatusPartial, rec.Status)
	assert.Equal(t, models.StatusPartial, f.studentStatus(t))

	// D
	rec, err = f.svc.Collect(ctx, f.collect(models.Sem2, 5000))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, rec.Sem2.Status)
	assert.Equal(t, models.StatusPaid, rec.Status)
	assert.Equal(t, models.StatusPaid, f.studentStatus(t))

	// still a single record, found by its payment id
	all, err := f.svc.ListByStudent(ctx, f.studentID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	byPayment, err := f.svc.FindByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byPayment.ID)
}

func TestCollect_DefaultAdmissionFee(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)
	f.admissions.Put(models.Admission{AdmissionNo: "ADM-1", StudentID: f.studentID})

	rec, err := f.svc.Collect(ctx, f.collect(models.Sem2, 0))
	require.NoError(t, err)
	assert.Equal(t, "2000", rec.AdmissionFee.String())
	assert.Equal(t, "2000", rec.Sem1.Paid.String())
}

func TestCollect_LookupFailures(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)

	in := f.collect(models.Sem1, 100)
	in.StudentID = primitive.NewObjectID()
	_, err := f.svc.Collect(ctx, in)
	assert.ErrorIs(t, err, ledger.ErrStudentNotFound)

	in = f.collect(models.Sem1, 100)
	in.AdmissionNo = "ADM-404"
	_, err = f.svc.Collect(ctx, in)
	assert.ErrorIs(t, err, ledger.ErrAdmissionNotFound)

	in = f.collect(models.Sem1, 100)
	in.Class = "4"
	_, err = f.svc.Collect(ctx, in)
	assert.ErrorIs(t, err, ledger.ErrUnknownClass)

	in = f.collect("sem9", 100)
	_, err = f.svc.Collect(ctx, in)
	assert.ErrorIs(t, err, ledger.ErrInvalidSemester)

	in = f.collect(models.Sem1, 100)
	in.Mode = "gold"
	_, err = f.svc.Collect(ctx, in)
	assert.ErrorIs(t, err, ledger.ErrInvalidPaymentMode)

	// nothing was created by the rejected requests
	all, err := f.svc.ListByStudents(ctx, []primitive.ObjectID{f.studentID})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCollect_ConcurrentFirstPaymentsCreateOneRecord(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 100)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Collect(ctx, f.collect(models.Sem2, 100))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	all, err := f.svc.ListByStudent(ctx, f.studentID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1600", all[0].Sem2.Paid.String())
}

func TestCollect_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 1000)

	// create the record first so every goroutine races on the same version
	_, err := f.svc.Collect(ctx, f.collect(models.Sem2, 0))
	require.NoError(t, err)

	const n = 20
	var (
		wg       sync.WaitGroup
		accepted int64
		rejected int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Collect(ctx, f.collect(models.Sem2, 1000))
			switch {
			case err == nil:
				atomic.AddInt64(&accepted, 1)
			case errors.Is(err, ledger.ErrOverpayment):
				atomic.AddInt64(&rejected, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := f.svc.FindByStudentAndClassSection(ctx, f.studentID, "10", "A")
	require.NoError(t, err)

	assert.Equal(t, int64(5), accepted)
	assert.Equal(t, int64(n-5), rejected)
	assert.Equal(t, "5000", rec.Sem2.Paid.String())
	assert.False(t, rec.Sem2.Paid.GreaterThan(ledger.Total(rec.Sem2)))
	assert.True(t, rec.Sem2.Balance.IsZero())
	assert.Equal(t, models.StatusPaid, rec.Sem2.Status)
}

// conflictingStore fails the first updates with a version conflict.
type conflictingStore struct {
	*memdb.FeeStore
	failures int32
}

func (s *conflictingStore) Update(ctx context.Context, rec *models.FeeRecord) error {
	if atomic.AddInt32(&s.failures, -1) >= 0 {
		return ledger.ErrVersionConflict
	}
	return s.FeeStore.Update(ctx, rec)
}

func TestCollect_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 3)
	store := &conflictingStore{FeeStore: f.fees, failures: 2}
	f.svc.fees = store

	rec, err := f.svc.Collect(ctx, f.collect(models.Sem2, 500))
	require.NoError(t, err)
	assert.Equal(t, "500", rec.Sem2.Paid.String())

	store.failures = 3
	_, err = f.svc.Collect(ctx, f.collect(models.Sem2, 500))
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	got, _ := f.fees.FindByStudentClassSection(ctx, f.studentID, "10", "A")
	assert.Equal(t, "500", got.Sem2.Paid.String())
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)

	_, err := f.svc.Edit(ctx, EditInput{StudentID: f.studentID, Class: "10", Section: "A", Semester: models.Sem2, Mode: models.ModeCash})
	assert.ErrorIs(t, err, ledger.ErrFeeRecordNotFound)

	_, err = f.svc.Collect(ctx, f.collect(models.Sem1, 4000))
	require.NoError(t, err)
	_, err = f.svc.Collect(ctx, f.collect(models.Sem2, 5000))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, f.studentStatus(t))

	rec, err := f.svc.Edit(ctx, EditInput{
		StudentID:  f.studentID,
		Class:      "10",
		Section:    "A",
		Semester:   models.Sem2,
		Mode:       models.ModeCheque,
		AmountPaid: decimal.NewFromInt(1000),
		Fine:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", rec.Sem2.Paid.String())
	assert.Equal(t, "4100", rec.Sem2.Balance.String())
	assert.Equal(t, models.StatusPartial, rec.Sem2.Status)
	assert.Equal(t, models.ModeCheque, rec.Mode)
	assert.Equal(t, models.StatusPartial, f.studentStatus(t))

	_, err = f.svc.Edit(ctx, EditInput{
		StudentID: f.studentID, Class: "10", Section: "A", Semester: models.Sem2,
		Mode: models.ModeCash, AmountPaid: decimal.NewFromInt(5001),
	})
	assert.ErrorIs(t, err, ledger.ErrOverpayment)
}

// failingStudents refuses fee status updates.
type failingStudents struct {
	*memdb.StudentStore
}

func (failingStudents) UpdateFeeStatus(context.Context, primitive.ObjectID, models.Status, int64) error {
	return errors.New("students collection unavailable")
}

func TestCollect_StatusSyncFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)
	f.svc.students = failingStudents{f.students}

	rec, err := f.svc.Collect(ctx, f.collect(models.Sem2, 1000))
	var syncErr *StatusSyncError
	require.True(t, errors.As(err, &syncErr), "got %v", err)
	require.NotNil(t, rec)
	assert.Equal(t, rec, syncErr.Record)

	// the payment itself was committed
	got, _ := f.fees.FindByStudentClassSection(ctx, f.studentID, "10", "A")
	assert.Equal(t, "1000", got.Sem2.Paid.String())

	// the repair path brings the student back in line
	f.svc.students = f.students
	status, err := f.svc.SyncStudentFeeStatus(ctx, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, status)
	assert.Equal(t, models.StatusPartial, f.studentStatus(t))
}

// pausingFees blocks the first ListByStudents after arm until release is
// closed, holding a status sync between its read and its write.
type pausingFees struct {
	*memdb.FeeStore
	armed   int32
	read    chan struct{}
	release chan struct{}
}

func (s *pausingFees) arm() {
	s.read = make(chan struct{})
	s.release = make(chan struct{})
	atomic.StoreInt32(&s.armed, 1)
}

func (s *pausingFees) ListByStudents(ctx context.Context, ids []primitive.ObjectID) ([]models.FeeRecord, error) {
	records, err := s.FeeStore.ListByStudents(ctx, ids)
	if atomic.CompareAndSwapInt32(&s.armed, 1, 0) {
		close(s.read)
		<-s.release
	}
	return records, err
}

func TestCollect_LateStatusSyncDoesNotOverwriteNewer(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)
	fees := &pausingFees{FeeStore: f.fees}
	f.svc.fees = fees

	_, err := f.svc.Collect(ctx, f.collect(models.Sem1, 4000))
	require.NoError(t, err)
	require.Equal(t, models.StatusPartial, f.studentStatus(t))

	// first payment commits, then its sync reads the Partial snapshot and stalls
	fees.arm()
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Collect(ctx, f.collect(models.Sem2, 1000))
		done <- err
	}()
	<-fees.read

	// second payment settles sem2 and syncs Paid
	rec, err := f.svc.Collect(ctx, f.collect(models.Sem2, 4000))
	require.NoError(t, err)
	require.Equal(t, models.StatusPaid, rec.Status)
	require.Equal(t, models.StatusPaid, f.studentStatus(t))

	// the stalled sync finishes with its older snapshot
	close(fees.release)
	require.NoError(t, <-done)

	records, err := f.svc.ListByStudent(ctx, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StudentFeeStatus(records), f.studentStatus(t))
	assert.Equal(t, models.StatusPaid, f.studentStatus(t))

	// a repair sync from the current records agrees
	status, err := f.svc.SyncStudentFeeStatus(ctx, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, status)
}

func TestSyncStudentFeeStatus_StaleSnapshotReturnsStored(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)

	_, err := f.svc.Collect(ctx, f.collect(models.Sem1, 4000))
	require.NoError(t, err)
	require.NoError(t, f.students.UpdateFeeStatus(ctx, f.studentID, models.StatusPaid, 1000))

	status, err := f.svc.SyncStudentFeeStatus(ctx, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, status)
	assert.Equal(t, models.StatusPaid, f.studentStatus(t))
}

func TestFindByPaymentID_Validation(t *testing.T) {
	f := newFeeFixture(t, 0)
	_, err := f.svc.FindByPaymentID(context.Background(), "  ")
	var verr *ledger.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.svc.FindByPaymentID(context.Background(), "nope")
	assert.ErrorIs(t, err, ledger.ErrFeeRecordNotFound)
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	f := newFeeFixture(t, 0)
	other := f.students.Put(models.Student{Name: "Bela", AdmissionNo: "ADM-2", Class: "10", Section: "A"})
	f.students.Put(models.Student{Name: "Chen", AdmissionNo: "ADM-3", Class: "10", Section: "A"})
	f.students.Put(models.Student{Name: "Dev", AdmissionNo: "ADM-4", Class: "10", Section: "B"})
	f.admissions.Put(models.Admission{AdmissionNo: "ADM-2", StudentID: other, AdmissionFee: decimal.NewFromInt(1500)})

	_, err := f.svc.Collect(ctx, f.collect(models.Sem1, 4000))
	require.NoError(t, err)
	_, err = f.svc.Collect(ctx, f.collect(models.Sem2, 5000))
	require.NoError(t, err)

	in := f.collect(models.Sem2, 2000)
	in.StudentID, in.AdmissionNo = other, "ADM-2"
	_, err = f.svc.Collect(ctx, in)
	require.NoError(t, err)

	ov, err := f.svc.Overview(ctx, "10", "A")
	require.NoError(t, err)
	assert.Equal(t, 3, ov.Students)
	assert.Equal(t, 1, ov.Paid)
	assert.Equal(t, 1, ov.Partial)
	assert.Equal(t, 1, ov.Unpaid)
	assert.Equal(t, "22000", ov.TotalAmount.String())
	assert.Equal(t, "14500", ov.TotalPaid.String())
	assert.Equal(t, "9000", ov.TotalBalance.String())
	require.Len(t, ov.Entries, 3)
	assert.Equal(t, "Asha", ov.Entries[0].Student.Name)

	whole, err := f.svc.Overview(ctx, "10", "")
	require.NoError(t, err)
	assert.Equal(t, 4, whole.Students)

	_, err = f.svc.Overview(ctx, "", "A")
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = f.svc.Overview(ctx, "99", "A")
	assert.ErrorIs(t, err, ledger.ErrUnknownClass)
}
