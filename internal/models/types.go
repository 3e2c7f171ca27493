package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray maps to text[] on Postgres and to a Postgres array literal
// stored as text elsewhere, so the same model runs against SQLite in tests.
type StringArray []string

func (a *StringArray) Scan(value interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*a = StringArray(arr)
	return nil
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return pq.StringArray(a).Value()
}

// GormDBDataType picks the column type per dialect.
func (StringArray) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Normalize lowercases, trims and de-duplicates tags, dropping empties.
func (a StringArray) Normalize() StringArray {
	seen := make(map[string]struct{}, len(a))
	out := make(StringArray, 0, len(a))
	for _, v := range a {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Peaks is a normalised waveform stored as a JSON array.
type Peaks []float64

func (p *Peaks) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("peaks: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]float64)(p))
}

func (p Peaks) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float64(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func newID() string {
	return uuid.New().String()
}
