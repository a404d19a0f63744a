package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

// FeeRepository persists fee records. Implementations enforce a unique
// (student, class, section) key and reject Update when the stored version
// differs from rec.Version.
type FeeRepository interface {
	Insert(ctx context.Context, rec *models.FeeRecord) error
	Update(ctx context.Context, rec *models.FeeRecord) error
	FindByStudentClassSection(ctx context.Context, studentID primitive.ObjectID, class, section string) (*models.FeeRecord, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.FeeRecord, error)
	ListByStudents(ctx context.Context, studentIDs []primitive.ObjectID) ([]models.FeeRecord, error)
}

type StudentRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Student, error)
	ListByClassSection(ctx context.Context, class, section string) ([]models.Student, error)
	// UpdateFeeStatus stores status unless the student already holds a status
	// computed from a later snapshot (a larger stamp), in which case it
	// returns ledger.ErrStaleFeeStatus.
	UpdateFeeStatus(ctx context.Context, id primitive.ObjectID, status models.Status, stamp int64) error
}

type AdmissionRepository interface {
	FindByAdmissionNo(ctx context.Context, admissionNo string) (*models.Admission, error)
}

type StaffRepository interface {
	Insert(ctx context.Context, staff *models.Staff) error
	FindByEmail(ctx context.Context, email string) (*models.Staff, error)
	List(ctx context.Context) ([]models.Staff, error)
}
