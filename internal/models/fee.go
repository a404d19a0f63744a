package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the payment state of a semester, a fee record or a student.
type Status string

const (
	StatusUnpaid  Status = "Unpaid"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
)

// Semester names one of the two ledgers of a fee record.
type Semester string

const (
	Sem1 Semester = "sem1"
	Sem2 Semester = "sem2"
)

// PaymentMode is the channel a payment was received through.
type PaymentMode string

const (
	ModeCash         PaymentMode = "cash"
	ModeCheque       PaymentMode = "cheque"
	ModeCard         PaymentMode = "card"
	ModeUPI          PaymentMode = "upi"
	ModeBankTransfer PaymentMode = "bank_transfer"
	ModeOnline       PaymentMode = "online"
)

// SemesterLedger is the sub-account of one semester.
type SemesterLedger struct {
	Amount   decimal.Decimal `bson:"amount" json:"amount"`
	Paid     decimal.Decimal `bson:"paid" json:"paid"`
	Discount decimal.Decimal `bson:"discount" json:"discount"`
	Fine     decimal.Decimal `bson:"fine" json:"fine"`
	Balance  decimal.Decimal `bson:"balance" json:"balance"`
	Status   Status          `bson:"status" json:"status"`
}

// FeeRecord holds both semester ledgers of a student in one class/section.
type FeeRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentID    primitive.ObjectID `bson:"student_id" json:"studentId"`
	AdmissionNo  string             `bson:"admission_no" json:"admissionNo"`
	Class        string             `bson:"class" json:"class"`
	Section      string             `bson:"section" json:"section"`
	FeesGroup    string             `bson:"fees_group" json:"feesGroup"`
	FeesCode     string             `bson:"fees_code" json:"feesCode"`
	PaymentID    string             `bson:"payment_id" json:"paymentId"`
	Mode         PaymentMode        `bson:"mode" json:"mode"`
	DueDate      time.Time          `bson:"due_date" json:"dueDate"`
	AdmissionFee decimal.Decimal    `bson:"admission_fee" json:"admissionFee"`
	Sem1         SemesterLedger     `bson:"sem1" json:"sem1"`
	Sem2         SemesterLedger     `bson:"sem2" json:"sem2"`
	Discount     decimal.Decimal    `bson:"discount" json:"discount"`
	Fine         decimal.Decimal    `bson:"fine" json:"fine"`
	Paid         decimal.Decimal    `bson:"paid" json:"paid"`
	Balance      decimal.Decimal    `bson:"balance" json:"balance"`
	Status       Status             `bson:"status" json:"status"`
	Version      int64              `bson:"version" json:"version"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Ledger returns a pointer to the named semester, or nil for an unknown name.
func (r *FeeRecord) Ledger(sem Semester) *SemesterLedger {
	switch sem {
	case Sem1:
		return &r.Sem1
	case Sem2:
		return &r.Sem2
	}
	return nil
}
