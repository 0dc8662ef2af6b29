package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldKind — тип поля формы. Хранится и отдаётся всегда в нижнем регистре.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldEmail    FieldKind = "email"
	FieldTel      FieldKind = "tel"
	FieldNumber   FieldKind = "number"
	FieldDate     FieldKind = "date"
	FieldTextarea FieldKind = "textarea"
	FieldSelect   FieldKind = "select"
)

var fieldKinds = map[FieldKind]struct{}{
	FieldText: {}, FieldEmail: {}, FieldTel: {}, FieldNumber: {},
	FieldDate: {}, FieldTextarea: {}, FieldSelect: {},
}

// ParseFieldKind принимает тип в любом регистре ("TEXT", "Email") и возвращает каноничный.
func ParseFieldKind(s string) (FieldKind, error) {
	k := FieldKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fieldKinds[k]; !ok {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return k, nil
}

func (k FieldKind) Valid() bool {
	_, ok := fieldKinds[k]
	return ok
}

func (k *FieldKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseFieldKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Scan нормализует значения, записанные старыми версиями в верхнем регистре.
func (k *FieldKind) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*k = ""
		return nil
	default:
		return fmt.Errorf("field kind: unsupported type %T", src)
	}
	*k = FieldKind(strings.ToLower(s))
	return nil
}

func (k FieldKind) Value() (driver.Value, error) {
	return string(k), nil
}
