// Package ledger computes fee records: creation from the class fee table,
// payment application, administrative resets and status rollups. Functions
// here never touch storage; callers persist the records they return.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

const currencyPlaces = 2

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(currencyPlaces)
}

// nonNegative treats negative input as zero.
func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return round(d)
}

var paymentModes = map[models.PaymentMode]bool{
	models.ModeCash:         true,
	models.ModeCheque:       true,
	models.ModeCard:         true,
	models.ModeUPI:          true,
	models.ModeBankTransfer: true,
	models.ModeOnline:       true,
}

// ParsePaymentMode accepts a mode name in any case, with spaces or dashes in
// place of underscores.
func ParsePaymentMode(s string) (models.PaymentMode, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	mode := models.PaymentMode(norm)
	if !paymentModes[mode] {
		return "", fmt.Errorf("%w %q", ErrInvalidPaymentMode, s)
	}
	return mode, nil
}

// ParseSemester accepts "sem1" or "sem2".
func ParseSemester(s string) (models.Semester, error) {
	sem := models.Semester(strings.ToLower(strings.TrimSpace(s)))
	if sem != models.Sem1 && sem != models.Sem2 {
		return "", fmt.Errorf("%w %q", ErrInvalidSemester, s)
	}
	return sem, nil
}

// Total is the adjusted amount owed for a semester.
func Total(l models.SemesterLedger) decimal.Decimal {
	return l.Amount.Sub(l.Discount).Add(l.Fine)
}

// SemesterStatus derives the status of a ledger from its figures.
func SemesterStatus(l models.SemesterLedger) models.Status {
	if !l.Balance.IsPositive() {
		return models.StatusPaid
	}
	if l.Paid.IsPositive() && l.Paid.LessThan(Total(l)) {
		return models.StatusPartial
	}
	return models.StatusUnpaid
}

// Rollup combines the statuses of two semesters: Paid when both are paid,
// Unpaid when both are unpaid, Partial otherwise.
func Rollup(a, b models.Status) models.Status {
	switch {
	case a == models.StatusPaid && b == models.StatusPaid:
		return models.StatusPaid
	case a == models.StatusUnpaid && b == models.StatusUnpaid:
		return models.StatusUnpaid
	}
	return models.StatusPartial
}

// StudentFeeStatus folds the statuses of all fee records of a student with
// the same rule as Rollup. A student without records is Unpaid.
func StudentFeeStatus(records []models.FeeRecord) models.Status {
	if len(records) == 0 {
		return models.StatusUnpaid
	}
	status := records[0].Status
	for _, r := range records[1:] {
		status = Rollup(status, r.Status)
	}
	return status
}

// FeeStatusStamp orders snapshots of a student's records. Every insert and
// every versioned update raises it by one, so a larger stamp was read after
// more writes.
func FeeStatusStamp(records []models.FeeRecord) int64 {
	var stamp int64
	for _, r := range records {
		stamp += r.Version + 1
	}
	return stamp
}

func recompute(r *models.FeeRecord) {
	r.Paid = round(r.Sem1.Paid.Add(r.Sem2.Paid))
	r.Balance = round(r.Sem1.Balance.Add(r.Sem2.Balance))
	r.Status = Rollup(r.Sem1.Status, r.Sem2.Status)
}

// CreateInput identifies a new fee record. Callers resolve the student and
// the admission before building it.
type CreateInput struct {
	StudentID   primitive.ObjectID
	AdmissionNo string
	Class       string
	Section     string
	FeesGroup   string
	FeesCode    string
	Mode        models.PaymentMode
	PaymentID   string
	DueDate     time.Time
}

// NewFeeRecord seeds a record from the class fee table. The admission fee is
// credited to sem1 as already paid without lowering the sem1 balance.
func NewFeeRecord(fs FeeStructure, in CreateInput, admissionFee decimal.Decimal, now time.Time) (*models.FeeRecord, error) {
	amounts, ok := fs.Lookup(in.Class)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownClass, in.Class)
	}
	mode, err := ParsePaymentMode(string(in.Mode))
	if err != nil {
		return nil, err
	}

	sem1 := models.SemesterLedger{Amount: amounts.Sem1, Balance: amounts.Sem1}
	sem1.Status = SemesterStatus(sem1)
	sem1.Paid = nonNegative(admissionFee)

	sem2 := models.SemesterLedger{Amount: amounts.Sem2, Balance: amounts.Sem2}
	sem2.Status = SemesterStatus(sem2)

	rec := &models.FeeRecord{
		StudentID:    in.StudentID,
		AdmissionNo:  in.AdmissionNo,
		Class:        in.Class,
		Section:      in.Section,
		FeesGroup:    in.FeesGroup,
		FeesCode:     in.FeesCode,
		PaymentID:    in.PaymentID,
		Mode:         mode,
		DueDate:      in.DueDate,
		AdmissionFee: sem1.Paid,
		Sem1:         sem1,
		Sem2:         sem2,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	recompute(rec)
	return rec, nil
}

// Transaction is one payment against one semester.
type Transaction struct {
	Semester   models.Semester
	AmountPaid decimal.Decimal
	Discount   decimal.Decimal
	Fine       decimal.Decimal
	Mode       models.PaymentMode
}

// ApplyPayment adds a payment to a semester of rec. Negative figures count as
// zero and the discount is capped at the semester amount. On error rec is
// left exactly as it was.
func ApplyPayment(rec *models.FeeRecord, tx Transaction) error {
	mode, err := ParsePaymentMode(string(tx.Mode))
	if err != nil {
		return err
	}
	next := *rec
	l := next.Ledger(tx.Semester)
	if l == nil {
		return fmt.Errorf("%w %q", ErrInvalidSemester, tx.Semester)
	}

	amountPaid := nonNegative(tx.AmountPaid)
	discount := capDiscount(nonNegative(tx.Discount), l.Amount)
	fine := nonNegative(tx.Fine)
	total := l.Amount.Sub(discount).Add(fine)

	paid := l.Paid.Add(amountPaid)
	if paid.GreaterThan(total) {
		return &OverpaymentError{
			Semester:  string(tx.Semester),
			Paid:      l.Paid.StringFixed(currencyPlaces),
			Requested: amountPaid.StringFixed(currencyPlaces),
			Total:     total.StringFixed(currencyPlaces),
		}
	}

	l.Paid = paid
	l.Discount = discount
	l.Fine = fine
	l.Balance = round(total.Sub(paid))
	l.Status = SemesterStatus(*l)

	next.Discount = round(next.Discount.Add(discount))
	next.Fine = round(next.Fine.Add(fine))
	next.Mode = mode
	recompute(&next)

	*rec = next
	return nil
}

// Edit is an administrative correction of one semester.
type Edit struct {
	Semester   models.Semester
	Discount   decimal.Decimal
	Fine       decimal.Decimal
	AmountPaid decimal.Decimal
	Mode       models.PaymentMode
}

// ResetSemester clears a semester's paid, discount, fine and status and then
// applies the edit as if it were the first payment. The record-level discount
// and fine move by the difference between the old and new semester values.
func ResetSemester(rec *models.FeeRecord, e Edit) error {
	mode, err := ParsePaymentMode(string(e.Mode))
	if err != nil {
		return err
	}
	next := *rec
	l := next.Ledger(e.Semester)
	if l == nil {
		return fmt.Errorf("%w %q", ErrInvalidSemester, e.Semester)
	}
	old := *l

	discount := capDiscount(nonNegative(e.Discount), l.Amount)
	fine := nonNegative(e.Fine)
	paid := nonNegative(e.AmountPaid)
	total := l.Amount.Sub(discount).Add(fine)
	if paid.GreaterThan(total) {
		return &OverpaymentError{
			Semester:  string(e.Semester),
			Paid:      decimal.Zero.StringFixed(currencyPlaces),
			Requested: paid.StringFixed(currencyPlaces),
			Total:     total.StringFixed(currencyPlaces),
		}
	}

	*l = models.SemesterLedger{
		Amount:   old.Amount,
		Paid:     paid,
		Discount: discount,
		Fine:     fine,
		Balance:  round(total.Sub(paid)),
	}
	l.Status = SemesterStatus(*l)

	next.Discount = nonNegative(next.Discount.Sub(old.Discount).Add(discount))
	next.Fine = nonNegative(next.Fine.Sub(old.Fine).Add(fine))
	next.Mode = mode
	recompute(&next)

	*rec = next
	return nil
}

func capDiscount(discount, amount decimal.Decimal) decimal.Decimal {
	if discount.GreaterThan(amount) {
		return amount
	}
	return discount
}
