package config

import "time"

// Values is a free-form settings map with type-safe accessors. Tool
// sections decode into it, so providers can read their own knobs
// without the schema living here. All accessors return the default when
// the key is missing or the value cannot be converted.
type Values map[string]any

// String returns the string value for key, or defaultVal.
func (v Values) String(key, defaultVal string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
func (v Values) Bool(key string, defaultVal bool) bool {
	if b, ok := v[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal.
// Floats convert only when they have no fractional part.
func (v Values) Int(key string, defaultVal int) int {
	switch val := v[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal.
func (v Values) Float(key string, defaultVal float64) float64 {
	switch val := v[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return defaultVal
}

// Duration returns the duration for key, or defaultVal.
// Strings parse with time.ParseDuration; bare numbers are seconds.
func (v Values) Duration(key string, defaultVal time.Duration) time.Duration {
	switch val := v[key].(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// StringSlice returns the string slice for key, or defaultVal.
// A []any converts only when every element is a string.
func (v Values) StringSlice(key string, defaultVal []string) []string {
	switch val := v[key].(type) {
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result = append(result, s)
		}
		return result
	}
	return defaultVal
}

// Has reports whether the key exists.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}
