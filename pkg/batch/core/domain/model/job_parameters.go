package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// JobParameters carries the caller-supplied values that identify a job run.
// Two launches of the same job with equal parameters refer to the same JobInstance.
type JobParameters struct {
	Params map[string]interface{} `json:"params"`
}

// NewJobParameters creates an empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Put sets a value in JobParameters with the specified key and value.
func (jp JobParameters) Put(key string, value interface{}) {
	jp.Params[key] = value
}

// Get retrieves the value for the specified key. Returns nil if the value does not exist.
func (jp JobParameters) Get(key string) interface{} {
	return jp.Params[key]
}

// GetString retrieves the value for the specified key as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	s, ok := jp.Params[key].(string)
	return s, ok
}

// GetInt64 retrieves the value for key as an int64.
// Numeric strings and JSON-decoded float64 values are accepted.
func (jp JobParameters) GetInt64(key string) (int64, bool) {
	switch v := jp.Params[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Copy returns a deep-enough copy; nested maps are shared.
func (jp JobParameters) Copy() JobParameters {
	out := NewJobParameters()
	for k, v := range jp.Params {
		out.Params[k] = v
	}
	return out
}

// Len returns the number of parameters.
func (jp JobParameters) Len() int {
	return len(jp.Params)
}

// Equal compares parameters by their canonical form, so int 1 and float64 1 are equal.
func (jp JobParameters) Equal(other JobParameters) bool {
	a, errA := jp.canonicalJSON()
	b, errB := other.canonicalJSON()
	if errA != nil || errB != nil {
		return reflect.DeepEqual(jp.Params, other.Params)
	}
	return a == b
}

// Hash returns the sha256 of the canonical JSON form of the parameters.
func (jp JobParameters) Hash() (string, error) {
	s, err := jp.canonicalJSON()
	if err != nil {
		return "", fmt.Errorf("job parameters hash: %w", err)
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders the parameters with sorted keys and values normalized
// through a JSON round trip.
func (jp JobParameters) canonicalJSON() (string, error) {
	raw, err := json.Marshal(jp.Params)
	if err != nil {
		return "", err
	}
	var normalized map[string]interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(normalized[k])
		if err != nil {
			return "", err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return string(buf), nil
}

// String returns the canonical JSON form, or an error marker.
func (jp JobParameters) String() string {
	s, err := jp.canonicalJSON()
	if err != nil {
		return fmt.Sprintf("{[ERROR: %v]}", err)
	}
	return s
}

// Value implements driver.Valuer so parameters can be stored as a JSON column.
func (jp JobParameters) Value() (driver.Value, error) {
	if jp.Params == nil {
		return "{}", nil
	}
	b, err := json.Marshal(jp.Params)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*jp = NewJobParameters()
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JobParameters", value)
	}
	params := make(map[string]interface{})
	if len(b) > 0 {
		if err := json.Unmarshal(b, &params); err != nil {
			return err
		}
	}
	jp.Params = params
	return nil
}
