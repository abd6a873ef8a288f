// Package bridge converts between JSON values and Starlark script values.
//
// FromJSON never fails: unsupported inputs degrade to starlark.None,
// symmetric with ToJSON, which converts unsupported script values (a
// callable, an opaque capability handle) to nil. ToJSON fails only on a
// dict whose key is not a string.
package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// FromJSON converts a decoded JSON value (as produced by encoding/json's
// default decoding into any) into the equivalent Starlark value.
func FromJSON(v any) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case string:
		return starlark.String(val)
	case float64:
		return numberFromFloat64(val)
	case int:
		return starlark.MakeInt(val)
	case int64:
		return starlark.MakeInt64(val)
	case []any:
		elems := make([]starlark.Value, len(val))
		for i, e := range val {
			elems[i] = FromJSON(e)
		}
		return starlark.NewList(elems)
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for _, k := range orderedKeys(val) {
			_ = dict.SetKey(starlark.String(k), FromJSON(val[k]))
		}
		return dict
	default:
		return starlark.None
	}
}

// numberFromFloat64 follows the JSON-integer-vs-number split in the spec:
// a value with no fractional part that fits a signed 64-bit integer
// becomes a script integer; anything else becomes a script float.
func numberFromFloat64(f float64) starlark.Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && f >= -9.223372036854776e18 && f <= 9.223372036854776e18 {
		return starlark.MakeInt64(int64(f))
	}
	return starlark.Float(f)
}

// orderedKeys is the fallback used when FromJSON is handed an already
// decoded map[string]any — encoding/json's decode-into-any path has
// already thrown away the source's real key order by the time it reaches
// here, so true insertion order is unrecoverable; sorting at least makes
// the result deterministic across calls instead of following Go's
// randomized map iteration. Callers that start from raw bytes (capability
// HTTP responses, data.load_json) should use FromJSONBytes instead, which
// preserves the source's actual insertion order.
func orderedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromJSONBytes parses raw JSON bytes directly into a Starlark value,
// walking tokens itself rather than decoding into map[string]any first —
// encoding/json's decode-into-any path loses object key order to Go's
// randomized map iteration, which violates spec.md §4.1's "JSON object to
// script mapping preserves insertion order" rule. Any caller that starts
// from raw bytes (rather than an already-decoded Go value) should prefer
// this over FromJSON.
func FromJSONBytes(raw []byte) (starlark.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("bridge: trailing data after JSON value")
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (starlark.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (starlark.Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			dict := starlark.NewDict(0)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v is not a string", keyTok)
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				if err := dict.SetKey(starlark.String(key), val); err != nil {
					return nil, err
				}
			}
			if _, err := dec.Token(); err != nil { // consume closing '}'
				return nil, err
			}
			return dict, nil
		case '[':
			var elems []starlark.Value
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				elems = append(elems, val)
			}
			if _, err := dec.Token(); err != nil { // consume closing ']'
				return nil, err
			}
			return starlark.NewList(elems), nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(t), nil
	case string:
		return starlark.String(t), nil
	case float64:
		return numberFromFloat64(t), nil
	default:
		return nil, fmt.Errorf("unsupported JSON token %v (%T)", t, t)
	}
}

// ToJSON converts a Starlark value back into a plain Go value suitable for
// encoding/json: nil, bool, int64/float64, string, []any, map[string]any.
// Values the bridge does not support (callables, opaque handles) convert
// to nil, matching FromJSON's treatment of unsupported JSON shapes.
func ToJSON(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		f := val.Float()
		return float64(f), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Tuple:
		out := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			jv, err := ToJSON(val.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	case *starlark.List:
		out := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			jv, err := ToJSON(val.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("bridge: dict key %s is not a string", item[0].String())
			}
			jv, err := ToJSON(item[1])
			if err != nil {
				return nil, err
			}
			out[key] = jv
		}
		return out, nil
	case *starlarkstruct.Struct:
		// Structs (e.g. fuzzy.search_with_scores results built internally)
		// marshal as plain objects over their declared attributes.
		out := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			jv, err := ToJSON(attr)
			if err != nil {
				return nil, err
			}
			out[name] = jv
		}
		return out, nil
	case starlark.Callable, *starlarkstruct.Module:
		return nil, nil
	default:
		return nil, nil
	}
}
