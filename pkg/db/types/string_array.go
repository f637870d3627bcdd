package dbtypes

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray is a text[] column on Postgres. Other dialects store the same
// array literal ({a,b}) in a text column, which keeps sqlite-backed tests on
// the production encoding.
type StringArray []string

func (a *StringArray) Scan(src any) error {
	var inner pq.StringArray
	if err := inner.Scan(src); err != nil {
		return err
	}
	if inner == nil {
		*a = StringArray{}
		return nil
	}
	*a = StringArray(inner)
	return nil
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return pq.StringArray(a).Value()
}

func (StringArray) GormDataType() string {
	return "text[]"
}

func (StringArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}
