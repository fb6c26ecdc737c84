package persistence

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/sequence"
	"gorm.io/gorm"
)

// documentModels maps each document table to the model stored in it
func documentModels() map[finance.Kind]any {
	return map[finance.Kind]any{
		finance.KindApInvoice:     &finance.ApInvoice{},
		finance.KindArInvoice:     &finance.ArInvoice{},
		finance.KindApNote:        &finance.Note{},
		finance.KindArNote:        &finance.Note{},
		finance.KindPayment:       &finance.Payment{},
		finance.KindReceipt:       &finance.Receipt{},
		finance.KindPurchaseOrder: &finance.PurchaseOrder{},
		finance.KindPaymentBatch:  &finance.PaymentBatch{},
		finance.KindJournalEntry:  &finance.JournalEntry{},
	}
}

// AutoMigrate creates the schema from the GORM models. It backs SQLite
// development databases and tests; Postgres deployments run the SQL
// migrations instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&sequence.SequenceCounter{}); err != nil {
		return fmt.Errorf("migrate sequence counters: %w", err)
	}
	for kind, model := range documentModels() {
		spec := finance.MustSpec(kind)
		if err := db.Table(spec.Table).AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %s: %w", spec.Table, err)
		}
		unique := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS uq_%s_number ON %s (agency_id, %s, number)",
			spec.Table, spec.Table, subAccountKeyExpr(db))
		if err := db.Exec(unique).Error; err != nil {
			return fmt.Errorf("index %s: %w", spec.Table, err)
		}
	}
	models := []any{
		&finance.JournalEntryLine{},
		&finance.OpenItem{},
		&finance.Clearing{},
		&finance.ClearingLine{},
		&finance.RecurringJournalTemplate{},
		&finance.RecurringJournalLine{},
		&finance.RecurringExecution{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}

// subAccountKeyExpr folds a NULL sub-account into the agency-level key so the
// number index treats agency-level documents as one partition
func subAccountKeyExpr(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "COALESCE(sub_account_id::text, '')"
	}
	return "COALESCE(sub_account_id, '')"
}
