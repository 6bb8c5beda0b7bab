package sqlutil

import "strings"

// ContentValues is an ordered column-name to value mapping used to build
// parameterized INSERT and UPDATE statements. Keys are unique ignoring
// case, as SQLite column names are; insertion order decides placeholder
// order.
type ContentValues struct {
	keys   []string
	values map[string]interface{}
}

// NewContentValues returns an empty mapping.
func NewContentValues() *ContentValues {
	return &ContentValues{values: make(map[string]interface{})}
}

// Put sets key to value. Re-putting an existing key keeps its original
// position and spelling.
func (cv *ContentValues) Put(key string, value interface{}) *ContentValues {
	if cv.values == nil {
		cv.values = make(map[string]interface{})
	}
	if existing, ok := cv.find(key); ok {
		cv.values[existing] = value
		return cv
	}
	cv.keys = append(cv.keys, key)
	cv.values[key] = value
	return cv
}

// PutNull sets key to SQL NULL.
func (cv *ContentValues) PutNull(key string) *ContentValues {
	return cv.Put(key, nil)
}

// Get returns the value stored for key.
func (cv *ContentValues) Get(key string) (interface{}, bool) {
	existing, ok := cv.find(key)
	if !ok {
		return nil, false
	}
	return cv.values[existing], true
}

// Remove deletes key.
func (cv *ContentValues) Remove(key string) {
	existing, ok := cv.find(key)
	if !ok {
		return
	}
	delete(cv.values, existing)
	for i, k := range cv.keys {
		if k == existing {
			cv.keys = append(cv.keys[:i], cv.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (cv *ContentValues) Len() int {
	if cv == nil {
		return 0
	}
	return len(cv.keys)
}

// Keys returns the keys in insertion order.
func (cv *ContentValues) Keys() []string {
	if cv == nil {
		return nil
	}
	return append([]string(nil), cv.keys...)
}

// Values returns the values in key order.
func (cv *ContentValues) Values() []interface{} {
	if cv == nil {
		return nil
	}
	out := make([]interface{}, len(cv.keys))
	for i, k := range cv.keys {
		out[i] = cv.values[k]
	}
	return out
}

func (cv *ContentValues) find(key string) (string, bool) {
	if _, ok := cv.values[key]; ok {
		return key, true
	}
	for _, k := range cv.keys {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}
