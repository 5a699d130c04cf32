package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap stores free-form gateway or caller metadata as a JSON column.
// Known convention keys used by the payment engine are "reject_reason"
// (set on rejected payments) and "reward" (caller supplied).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Merge returns a copy of m overlaid with the given values. Values win on
// key conflicts.
func (m JSONMap) Merge(values map[string]interface{}) JSONMap {
	result := make(JSONMap, len(m)+len(values))
	for k, v := range m {
		result[k] = v
	}
	for k, v := range values {
		result[k] = v
	}
	return result
}
