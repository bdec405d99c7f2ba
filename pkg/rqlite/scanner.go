package rqlite

// scanner.go implements row scanning logic with reflection for mapping SQL rows to Go structs and maps.

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC text form timestamps are stored in.
// It sorts lexically in time order on every supported driver.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	nullStringType = reflect.TypeOf(sql.NullString{})
	nullInt64Type  = reflect.TypeOf(sql.NullInt64{})
)

// scanIntoDest scans multiple rows into dest (pointer to slice of structs or maps).
func scanIntoDest(rows *sql.Rows, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNotPointer
	}
	sliceVal := rv.Elem()
	if sliceVal.Kind() != reflect.Slice {
		return ErrNotSlice
	}
	elemType := sliceVal.Type().Elem()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		switch elemType.Kind() {
		case reflect.Map:
			m, err := scanRowToMap(rows, cols)
			if err != nil {
				return err
			}
			sliceVal.Set(reflect.Append(sliceVal, reflect.ValueOf(m)))
		case reflect.Struct:
			item := reflect.New(elemType).Elem()
			if err := scanCurrentRowIntoStruct(rows, cols, item); err != nil {
				return err
			}
			sliceVal.Set(reflect.Append(sliceVal, item))
		default:
			return fmt.Errorf("unsupported slice element type: %s", elemType.Kind())
		}
	}
	return rows.Err()
}

// scanIntoSingle scans the current row into dest (pointer to struct or map).
func scanIntoSingle(rows *sql.Rows, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNotPointer
	}
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	switch rv.Elem().Kind() {
	case reflect.Map:
		m, err := scanRowToMap(rows, cols)
		if err != nil {
			return err
		}
		rv.Elem().Set(reflect.ValueOf(m))
		return nil
	case reflect.Struct:
		return scanCurrentRowIntoStruct(rows, cols, rv.Elem())
	default:
		return fmt.Errorf("unsupported dest kind: %s", rv.Elem().Kind())
	}
}

func scanRaw(rows *sql.Rows, n int) ([]any, error) {
	raw := make([]any, n)
	ptrs := make([]any, n)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return raw, nil
}

func scanRowToMap(rows *sql.Rows, cols []string) (map[string]any, error) {
	raw, err := scanRaw(rows, len(cols))
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := raw[i].([]byte); ok {
			out[c] = string(b)
			continue
		}
		out[c] = raw[i]
	}
	return out, nil
}

func scanCurrentRowIntoStruct(rows *sql.Rows, cols []string, destStruct reflect.Value) error {
	raw, err := scanRaw(rows, len(cols))
	if err != nil {
		return err
	}
	fieldIndex := buildFieldIndex(destStruct.Type())
	for i, c := range cols {
		idx, ok := fieldIndex[strings.ToLower(c)]
		if !ok {
			continue
		}
		if err := setReflectValue(destStruct.Field(idx), raw[i]); err != nil {
			return fmt.Errorf("column %s: %w", c, err)
		}
	}
	return nil
}

// buildFieldIndex maps lowercase column names (db tag or field name) to field indices.
func buildFieldIndex(t reflect.Type) map[string]int {
	m := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		col, _, _ := strings.Cut(f.Tag.Get("db"), ",")
		if col == "-" {
			continue
		}
		if col == "" {
			col = f.Name
		}
		m[strings.ToLower(col)] = i
	}
	return m
}

// toInt64 accepts the integer encodings of rqlite (float64), pgx (int32/int64) and sqlite.
func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", raw)
	}
}

func toString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return FormatTime(v)
	default:
		return fmt.Sprint(v)
	}
}

func parseTime(raw any) (time.Time, error) {
	if t, ok := raw.(time.Time); ok {
		return t.UTC(), nil
	}
	s := toString(raw)
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q", s)
	}
	return t.UTC(), nil
}

// setReflectValue sets a reflect.Value from a raw SQL value. NULL leaves the zero value.
func setReflectValue(field reflect.Value, raw any) error {
	if raw == nil || !field.CanSet() {
		return nil
	}

	switch field.Type() {
	case timeType:
		t, err := parseTime(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	case nullStringType:
		field.Set(reflect.ValueOf(sql.NullString{String: toString(raw), Valid: true}))
		return nil
	case nullInt64Type:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(sql.NullInt64{Int64: n, Valid: true}))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(toString(raw))
	case reflect.Bool:
		n, err := toInt64(raw)
		if err != nil {
			s := toString(raw)
			field.SetBool(strings.EqualFold(s, "true"))
			return nil
		}
		field.SetBool(n != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative value %d for unsigned field", n)
		}
		field.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch v := raw.(type) {
		case float64:
			field.SetFloat(v)
		default:
			f, err := strconv.ParseFloat(toString(raw), 64)
			if err != nil {
				return fmt.Errorf("cannot convert %T to float", raw)
			}
			field.SetFloat(f)
		}
	case reflect.Pointer:
		elem := reflect.New(field.Type().Elem())
		if err := setReflectValue(elem.Elem(), raw); err != nil {
			return err
		}
		field.Set(elem)
	default:
		return fmt.Errorf("unsupported dest field kind: %s", field.Kind())
	}
	return nil
}
