package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

type StudentFees struct {
	Student models.Student     `json:"student"`
	Status  models.Status      `json:"status"`
	Records []models.FeeRecord `json:"records"`
}

// ClassOverview summarises the fee position of one class or class/section.
type ClassOverview struct {
	Class         string          `json:"class"`
	Section       string          `json:"section,omitempty"`
	Students      int             `json:"students"`
	Paid          int             `json:"paid"`
	Partial       int             `json:"partial"`
	Unpaid        int             `json:"unpaid"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	TotalFine     decimal.Decimal `json:"totalFine"`
	TotalPaid     decimal.Decimal `json:"totalPaid"`
	TotalBalance  decimal.Decimal `json:"totalBalance"`
	Entries       []StudentFees   `json:"entries"`
}

// Overview lists the students of a class (and section, when given) with
// their fee records for that class. Students without a record count as Unpaid.
func (s *FeeService) Overview(ctx context.Context, class, section string) (*ClassOverview, error) {
	if class == "" {
		return nil, &ledger.ValidationError{Field: "class", Message: "this field is required"}
	}
	if _, ok := s.opts.Structure.Lookup(class); !ok {
		return nil, fmt.Errorf("%w %q", ledger.ErrUnknownClass, class)
	}

	students, err := s.students.ListByClassSection(ctx, class, section)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	records, err := s.fees.ListByStudents(ctx, ids)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[primitive.ObjectID][]models.FeeRecord, len(students))
	for _, r := range records {
		if r.Class != class || (section != "" && r.Section != section) {
			continue
		}
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}

	ov := &ClassOverview{
		Class:    class,
		Section:  section,
		Students: len(students),
		Entries:  make([]StudentFees, 0, len(students)),
	}
	for _, st := range students {
		recs := byStudent[st.ID]
		if recs == nil {
			recs = []models.FeeRecord{}
		}
		status := ledger.StudentFeeStatus(recs)
		switch status {
		case models.StatusPaid:
			ov.Paid++
		case models.StatusPartial:
			ov.Partial++
		default:
			ov.Unpaid++
		}
		for _, r := range recs {
			ov.TotalAmount = ov.TotalAmount.Add(r.Sem1.Amount).Add(r.Sem2.Amount)
			ov.TotalDiscount = ov.TotalDiscount.Add(r.Sem1.Discount).Add(r.Sem2.Discount)
			ov.TotalFine = ov.TotalFine.Add(r.Sem1.Fine).Add(r.Sem2.Fine)
			ov.TotalPaid = ov.TotalPaid.Add(r.Paid)
			ov.TotalBalance = ov.TotalBalance.Add(r.Balance)
		}
		ov.Entries = append(ov.Entries, StudentFees{Student: st, Status: status, Records: recs})
	}
	return ov, nil
}
