package reqctx

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/agora-forum/agora/internal/errs"
)

// Params are decoded JSON-RPC named params.
type Params map[string]interface{}

// ParseParams decodes raw into named params. Missing or null params
// decode to an empty set.
func ParseParams(raw json.RawMessage) (Params, error) {
	p := Params{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, errs.Invalid("params must be an object")
	}
	return p, nil
}

// Int64 returns an integer param and whether it was present.
func (p Params) Int64(key string) (int64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, true, errs.Invalid("%s must be an integer", key)
	}
	return int64(f), true, nil
}

// ID returns a required positive integer param.
func (p Params) ID(key string) (int64, error) {
	v, ok, err := p.Int64(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.Invalid("missing required parameter: %s", key)
	}
	if v <= 0 {
		return 0, errs.Invalid("%s must be positive", key)
	}
	return v, nil
}

// Int returns an integer param within [min, max], or def when absent.
func (p Params) Int(key string, def, min, max int) (int, error) {
	v, ok, err := p.Int64(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	if v < int64(min) || v > int64(max) {
		return 0, errs.Invalid("%s must be between %d and %d", key, min, max)
	}
	return int(v), nil
}

// String returns a string param, or def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.Invalid("%s must be a string", key)
	}
	return s, nil
}
