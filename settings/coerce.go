// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// coerce converts a stored value to the type of def. It never fails: when the
// value cannot be represented, the zero value of def's type is returned along
// with ok == false.
func coerce(raw string, def any) (v any, ok bool) {
	switch def.(type) {
	case string:
		return raw, true
	case bool:
		return coerceBool(raw), true
	case time.Duration:
		d, err := cast.ToDurationE(strings.TrimSpace(raw))
		if err != nil {
			return time.Duration(0), false
		}
		return d, true
	case []string:
		return coerceStrings(raw), true
	}

	rv := reflect.ValueOf(def)
	out := reflect.New(rv.Type()).Elem()
	trimmed := strings.TrimSpace(raw)

	switch rv.Kind() {
	case reflect.String:
		out.SetString(raw)
		return out.Interface(), true
	case reflect.Bool:
		out.SetBool(coerceBool(raw))
		return out.Interface(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := parseInt(trimmed)
		if !ok || out.OverflowInt(n) {
			return out.Interface(), false
		}
		out.SetInt(n)
		return out.Interface(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := parseInt(trimmed)
		if !ok || n < 0 || out.OverflowUint(uint64(n)) {
			return out.Interface(), false
		}
		out.SetUint(uint64(n))
		return out.Interface(), true
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(trimmed)
		if err != nil || out.OverflowFloat(f) {
			return out.Interface(), false
		}
		out.SetFloat(f)
		return out.Interface(), true
	default:
		if err := json.Unmarshal([]byte(raw), out.Addr().Interface()); err != nil {
			return reflect.New(rv.Type()).Elem().Interface(), false
		}
		return out.Interface(), true
	}
}

// parseInt accepts plain integers and truncates decimal values, so "3.9"
// reads as 3. Integers are parsed in base 10 only; cast.ToInt64E would read
// "010" as octal.
func parseInt(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func coerceBool(raw string) bool {
	s := strings.TrimSpace(raw)
	if b, err := cast.ToBoolE(s); err == nil {
		return b
	}
	switch strings.ToLower(s) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	return s != "" && s != "0"
}

func coerceStrings(raw string) []string {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// stringify converts a value handed to Set into its stored form.
func stringify(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case json.RawMessage:
		return string(v), nil
	case time.Duration:
		return v.String(), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to encode setting value: %w", err)
		}
		return string(b), nil
	case reflect.Bool:
		return stringify(rv.Bool())
	case reflect.String:
		if _, ok := value.(fmt.Stringer); !ok {
			return rv.String(), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if _, ok := value.(fmt.Stringer); !ok {
			return strconv.FormatInt(rv.Int(), 10), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if _, ok := value.(fmt.Stringer); !ok {
			return strconv.FormatUint(rv.Uint(), 10), nil
		}
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return "", fmt.Errorf("unsupported setting value type %T: %w", value, err)
	}
	return s, nil
}
