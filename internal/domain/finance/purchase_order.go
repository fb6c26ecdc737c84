package finance

import (
	"strings"
	"time"
)

// PurchaseOrder is a commitment to buy. It is approved and posted like other
// documents but creates no open item.
type PurchaseOrder struct {
	DocumentBase
	ExpectedDate *time.Time `gorm:"type:date"`
	ShipTo       string     `gorm:"size:500"`
}

// OpenItemSign is zero: commitments are not balances
func (d *PurchaseOrder) OpenItemSign() int { return 0 }

// PurchaseOrderInput creates or edits a purchase order
type PurchaseOrderInput struct {
	DocumentFields
	ExpectedDate *time.Time `json:"expected_date"`
	ShipTo       string     `json:"ship_to" validate:"max=500"`
}

func (in PurchaseOrderInput) Build(base DocumentBase) (*PurchaseOrder, error) {
	doc := &PurchaseOrder{DocumentBase: base}
	return doc, in.ApplyTo(doc)
}

func (in PurchaseOrderInput) ApplyTo(doc *PurchaseOrder) error {
	if err := in.DocumentFields.apply(&doc.DocumentBase, true); err != nil {
		return err
	}
	if in.ExpectedDate != nil {
		d := truncateDay(*in.ExpectedDate)
		doc.ExpectedDate = &d
	} else {
		doc.ExpectedDate = nil
	}
	doc.ShipTo = strings.TrimSpace(in.ShipTo)
	return nil
}
