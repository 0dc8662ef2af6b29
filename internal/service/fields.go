package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"

	"qline/internal/errs"
	"qline/internal/models"
)

// newValidator читает теги binding, как и валидатор gin.
func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// validateFields проверяет значения формы по полям очереди. Значения для
// неизвестных меток сохраняются как есть. Если required=false, пустые
// обязательные поля допускаются (запись добавляет владелец).
func validateFields(v *validator.Validate, defs []models.CustomField, submitted map[string]any, required bool) (datatypes.JSONMap, error) {
	data := datatypes.JSONMap{}
	for k, v := range submitted {
		if k = strings.TrimSpace(k); k != "" {
			data[k] = v
		}
	}

	var problems []string
	for _, f := range defs {
		key, raw, ok := lookup(data, f.Label)
		value := ""
		if ok {
			value = scalar(raw)
		}
		if value == "" {
			if f.Required && required {
				problems = append(problems, fmt.Sprintf("поле %q обязательно", f.Label))
			}
			continue
		}
		if err := checkKind(v, f, value); err != nil {
			problems = append(problems, fmt.Sprintf("поле %q: %v", f.Label, err))
			continue
		}
		// храним под меткой из определения очереди
		if key != f.Label {
			delete(data, key)
		}
		data[f.Label] = raw
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(problems, "; "))
	}
	return data, nil
}

func lookup(data datatypes.JSONMap, label string) (string, any, bool) {
	if v, ok := data[label]; ok {
		return label, v, true
	}
	for k, v := range data {
		if strings.EqualFold(strings.TrimSpace(k), strings.TrimSpace(label)) {
			return k, v, true
		}
	}
	return "", nil, false
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// kindTag — правило валидатора для значения поля; пустая строка — без проверки.
func kindTag(f models.CustomField) string {
	switch f.Kind {
	case models.FieldEmail:
		return "email"
	case models.FieldTel:
		return "e164|numeric,min=5,max=16"
	case models.FieldNumber:
		return "numeric"
	case models.FieldDate:
		return "datetime=2006-01-02"
	case models.FieldSelect:
		opts := f.OptionList()
		if len(opts) == 0 {
			return ""
		}
		quoted := make([]string, len(opts))
		for i, o := range opts {
			o = strings.ReplaceAll(o, ",", "0x2C")
			quoted[i] = "'" + strings.ReplaceAll(o, "|", "0x7C") + "'"
		}
		return "oneof=" + strings.Join(quoted, " ")
	}
	return ""
}

func checkKind(v *validator.Validate, f models.CustomField, value string) error {
	tag := kindTag(f)
	if tag == "" {
		return nil
	}
	if f.Kind == models.FieldTel {
		value = phoneSeparators.Replace(value)
	}
	if err := v.Var(value, tag); err != nil {
		switch f.Kind {
		case models.FieldEmail:
			return fmt.Errorf("некорректный email")
		case models.FieldTel:
			return fmt.Errorf("некорректный номер телефона")
		case models.FieldNumber:
			return fmt.Errorf("ожидается число")
		case models.FieldDate:
			return fmt.Errorf("ожидается дата в формате ГГГГ-ММ-ДД")
		case models.FieldSelect:
			return fmt.Errorf("значение %q не входит в список", value)
		}
		return err
	}
	return nil
}
