package persistence

import (
	"context"
	"errors"
	"reflect"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrMissingScope is returned when a scoped row is written without an agency
var ErrMissingScope = errors.New("persistence: scoped record has no agency_id")

const agencyColumn = "agency_id"

// RegisterScopeGuard rejects inserts of scoped rows whose agency is unset.
// Reads are not filtered: lookups by id must see foreign rows to report a
// scope mismatch rather than a miss.
func RegisterScopeGuard(db *gorm.DB) error {
	return db.Callback().Create().Before("gorm:create").Register("ledger:scope_guard", checkScope)
}

func checkScope(db *gorm.DB) {
	if db.Statement.Schema == nil {
		return
	}
	field := db.Statement.Schema.LookUpField(agencyColumn)
	if field == nil {
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if missingAgency(db, field.ValueOf, rv.Index(i)) {
				return
			}
		}
	case reflect.Struct:
		missingAgency(db, field.ValueOf, rv)
	}
}

func missingAgency(db *gorm.DB, valueOf func(context.Context, reflect.Value) (any, bool), rv reflect.Value) bool {
	rv = reflect.Indirect(rv)
	v, zero := valueOf(db.Statement.Context, rv)
	if id, ok := v.(uuid.UUID); zero || (ok && id == uuid.Nil) {
		_ = db.AddError(ErrMissingScope)
		return true
	}
	return false
}
