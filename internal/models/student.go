package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Student is owned by the student module; fees only read it and keep
// FeeStatus in sync.
type Student struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	AdmissionNo string             `bson:"admission_no" json:"admissionNo"`
	Class       string             `bson:"class" json:"class"`
	Section     string             `bson:"section" json:"section"`
	FeeStatus   Status             `bson:"fee_status" json:"feeStatus"`
	// FeeStatusStamp is the ledger.FeeStatusStamp of the records FeeStatus
	// was computed from. Older snapshots never overwrite newer ones.
	FeeStatusStamp int64     `bson:"fee_status_stamp" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

// Admission is the admission form a student was enrolled through.
type Admission struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AdmissionNo  string             `bson:"admission_no" json:"admissionNo"`
	StudentID    primitive.ObjectID `bson:"student_id,omitempty" json:"studentId"`
	AdmissionFee decimal.Decimal    `bson:"admission_fee" json:"admissionFee"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
}
