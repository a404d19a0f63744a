package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

// FeeOptions configures a FeeService. Zero fields take the defaults below.
type FeeOptions struct {
	Structure           ledger.FeeStructure
	DefaultAdmissionFee decimal.Decimal
	DueIn               time.Duration
	MaxRetries          int
	Now                 func() time.Time
	NewPaymentID        func() string
}

const (
	defaultAdmissionFee = 2000
	defaultDueIn        = 30 * 24 * time.Hour
	defaultMaxRetries   = 5
)

// FeeService collects and corrects fee payments. Each write is a versioned
// read-modify-write retried on conflict, followed by a sync of the
// student's fee status.
type FeeService struct {
	fees       FeeRepository
	students   StudentRepository
	admissions AdmissionRepository
	opts       FeeOptions
	log        zerolog.Logger
}

func NewFeeService(fees FeeRepository, students StudentRepository, admissions AdmissionRepository, opts FeeOptions, log zerolog.Logger) *FeeService {
	if len(opts.Structure.Classes()) == 0 {
		opts.Structure = ledger.DefaultFeeStructure()
	}
	if !opts.DefaultAdmissionFee.IsPositive() {
		opts.DefaultAdmissionFee = decimal.NewFromInt(defaultAdmissionFee)
	}
	if opts.DueIn <= 0 {
		opts.DueIn = defaultDueIn
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewPaymentID == nil {
		opts.NewPaymentID = uuid.NewString
	}
	return &FeeService{
		fees:       fees,
		students:   students,
		admissions: admissions,
		opts:       opts,
		log:        log.With().Str("service", "fee").Logger(),
	}
}

// StatusSyncError means the fee record was written but the student's
// fee status could not be updated. Record holds the committed record.
type StatusSyncError struct {
	Record *models.FeeRecord
	Err    error
}

func (e *StatusSyncError) Error() string {
	return fmt.Sprintf("fee record saved but student fee status sync failed: %v", e.Err)
}

func (e *StatusSyncError) Unwrap() error {
	return e.Err
}

// CollectInput is a validated payment request.
type CollectInput struct {
	StudentID   primitive.ObjectID
	AdmissionNo string
	Class       string
	Section     string
	FeesGroup   string
	FeesCode    string
	Semester    models.Semester
	Mode        models.PaymentMode
	AmountPaid  decimal.Decimal
	Discount    decimal.Decimal
	Fine        decimal.Decimal
}

// Collect applies a payment to the student's fee record for the class and
// section, creating the record on the first payment.
func (s *FeeService) Collect(ctx context.Context, in CollectInput) (*models.FeeRecord, error) {
	if _, err := ledger.ParseSemester(string(in.Semester)); err != nil {
		return nil, err
	}
	if _, err := ledger.ParsePaymentMode(string(in.Mode)); err != nil {
		return nil, err
	}
	if _, ok := s.opts.Structure.Lookup(in.Class); !ok {
		return nil, fmt.Errorf("%w %q", ledger.ErrUnknownClass, in.Class)
	}
	student, err := s.students.FindByID(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}

	tx := ledger.Transaction{
		Semester:   in.Semester,
		AmountPaid: in.AmountPaid,
		Discount:   in.Discount,
		Fine:       in.Fine,
		Mode:       in.Mode,
	}
	rec, err := s.mutate(ctx,
		func(ctx context.Context) (*models.FeeRecord, error) { return s.getOrCreate(ctx, student, in) },
		func(rec *models.FeeRecord) error { return ledger.ApplyPayment(rec, tx) },
	)
	if err != nil {
		s.log.Warn().Err(err).Str("student_id", student.ID.Hex()).Str("semester", string(in.Semester)).Msg("Payment rejected")
		return nil, err
	}

	s.log.Info().
		Str("student_id", student.ID.Hex()).
		Str("payment_id", rec.PaymentID).
		Str("semester", string(in.Semester)).
		Str("amount", in.AmountPaid.String()).
		Str("status", string(rec.Status)).
		Msg("Fee collected")

	return s.afterWrite(ctx, rec)
}

// EditInput is a validated administrative correction.
type EditInput struct {
	StudentID  primitive.ObjectID
	Class      string
	Section    string
	Semester   models.Semester
	Mode       models.PaymentMode
	AmountPaid decimal.Decimal
	Discount   decimal.Decimal
	Fine       decimal.Decimal
}

// Edit resets one semester of an existing record and applies new figures.
func (s *FeeService) Edit(ctx context.Context, in EditInput) (*models.FeeRecord, error) {
	if _, err := ledger.ParseSemester(string(in.Semester)); err != nil {
		return nil, err
	}
	edit := ledger.Edit{
		Semester:   in.Semester,
		Discount:   in.Discount,
		Fine:       in.Fine,
		AmountPaid: in.AmountPaid,
		Mode:       in.Mode,
	}
	rec, err := s.mutate(ctx,
		func(ctx context.Context) (*models.FeeRecord, error) {
			return s.fees.FindByStudentClassSection(ctx, in.StudentID, in.Class, in.Section)
		},
		func(rec *models.FeeRecord) error { return ledger.ResetSemester(rec, edit) },
	)
	if err != nil {
		s.log.Warn().Err(err).Str("student_id", in.StudentID.Hex()).Msg("Fee edit rejected")
		return nil, err
	}

	s.log.Info().
		Str("student_id", in.StudentID.Hex()).
		Str("payment_id", rec.PaymentID).
		Str("semester", string(in.Semester)).
		Msg("Fee record edited")

	return s.afterWrite(ctx, rec)
}

func (s *FeeService) afterWrite(ctx context.Context, rec *models.FeeRecord) (*models.FeeRecord, error) {
	if _, err := s.SyncStudentFeeStatus(ctx, rec.StudentID); err != nil {
		s.log.Error().Err(err).Str("student_id", rec.StudentID.Hex()).Msg("Failed to sync student fee status")
		return rec, &StatusSyncError{Record: rec, Err: err}
	}
	return rec, nil
}

// mutate loads a record, changes it and writes it back, starting over when
// another writer got there first.
func (s *FeeService) mutate(
	ctx context.Context,
	load func(context.Context) (*models.FeeRecord, error),
	change func(*models.FeeRecord) error,
) (*models.FeeRecord, error) {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		rec, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := change(rec); err != nil {
			return nil, err
		}
		rec.UpdatedAt = s.opts.Now()

		err = s.fees.Update(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ledger.ErrVersionConflict) {
			return nil, err
		}
		s.log.Debug().Str("fee_id", rec.ID.Hex()).Int("attempt", attempt).Msg("Fee record version conflict, retrying")
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ledger.ErrVersionConflict, s.opts.MaxRetries)
}

// getOrCreate returns the record for the student's class and section,
// creating it from the fee structure and the admission fee when absent.
func (s *FeeService) getOrCreate(ctx context.Context, student *models.Student, in CollectInput) (*models.FeeRecord, error) {
	rec, err := s.fees.FindByStudentClassSection(ctx, student.ID, in.Class, in.Section)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ledger.ErrFeeRecordNotFound) {
		return nil, err
	}

	admission, err := s.admissions.FindByAdmissionNo(ctx, in.AdmissionNo)
	if err != nil {
		return nil, err
	}
	admissionFee := admission.AdmissionFee
	if !admissionFee.IsPositive() {
		admissionFee = s.opts.DefaultAdmissionFee
	}

	now := s.opts.Now()
	rec, err = ledger.NewFeeRecord(s.opts.Structure, ledger.CreateInput{
		StudentID:   student.ID,
		AdmissionNo: in.AdmissionNo,
		Class:       in.Class,
		Section:     in.Section,
		FeesGroup:   in.FeesGroup,
		FeesCode:    in.FeesCode,
		Mode:        in.Mode,
		PaymentID:   s.opts.NewPaymentID(),
		DueDate:     now.Add(s.opts.DueIn),
	}, admissionFee, now)
	if err != nil {
		return nil, err
	}

	if err := s.fees.Insert(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrDuplicateFeeRecord) {
			s.log.Debug().Str("student_id", student.ID.Hex()).Msg("Fee record created concurrently, reusing it")
			return s.fees.FindByStudentClassSection(ctx, student.ID, in.Class, in.Section)
		}
		return nil, err
	}

	s.log.Info().
		Str("student_id", student.ID.Hex()).
		Str("class", in.Class).
		Str("section", in.Section).
		Str("payment_id", rec.PaymentID).
		Str("admission_fee", admissionFee.String()).
		Msg("Fee record created")
	return rec, nil
}

// SyncStudentFeeStatus recomputes the student's fee status from all of
// their fee records and stores it on the student. When a sync that read a
// later snapshot has already landed, that status is kept and returned.
func (s *FeeService) SyncStudentFeeStatus(ctx context.Context, studentID primitive.ObjectID) (models.Status, error) {
	records, err := s.fees.ListByStudents(ctx, []primitive.ObjectID{studentID})
	if err != nil {
		return "", err
	}
	status := ledger.StudentFeeStatus(records)
	stamp := ledger.FeeStatusStamp(records)

	err = s.students.UpdateFeeStatus(ctx, studentID, status, stamp)
	if errors.Is(err, ledger.ErrStaleFeeStatus) {
		s.log.Debug().Str("student_id", studentID.Hex()).Int64("stamp", stamp).Msg("Newer fee status already stored")
		student, err := s.students.FindByID(ctx, studentID)
		if err != nil {
			return "", err
		}
		return student.FeeStatus, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

func (s *FeeService) FindByStudentAndClassSection(ctx context.Context, studentID primitive.ObjectID, class, section string) (*models.FeeRecord, error) {
	return s.fees.FindByStudentClassSection(ctx, studentID, class, section)
}

func (s *FeeService) FindByPaymentID(ctx context.Context, paymentID string) (*models.FeeRecord, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, &ledger.ValidationError{Field: "paymentId", Message: "this field is required"}
	}
	return s.fees.FindByPaymentID(ctx, paymentID)
}

func (s *FeeService) ListByStudents(ctx context.Context, studentIDs []primitive.ObjectID) ([]models.FeeRecord, error) {
	return s.fees.ListByStudents(ctx, studentIDs)
}

// ListByStudent returns all fee records of an existing student.
func (s *FeeService) ListByStudent(ctx context.Context, studentID primitive.ObjectID) ([]models.FeeRecord, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return nil, err
	}
	return s.fees.ListByStudents(ctx, []primitive.ObjectID{studentID})
}

// Structure returns the fee table the service was built with.
func (s *FeeService) Structure() ledger.FeeStructure {
	return s.opts.Structure
}
