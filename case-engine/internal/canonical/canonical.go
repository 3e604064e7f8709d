// Package canonical produces deterministic JSON so audit hashes are stable
// across processes: object keys sorted, arrays in order, numbers kept in
// their textual form.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes any JSON-serializable value canonically.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Canonicalize re-encodes already serialized JSON. Numbers pass through as
// json.Number so 1.10 and 1.1 stay distinct.
func Canonicalize(raw []byte) ([]byte, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return Marshal(v)
}

func decode(raw []byte) (interface{}, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	return v, nil
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		return writeJSON(buf, val)
	case float64, int, int64:
		return writeJSON(buf, val)
	case json.RawMessage:
		inner, err := decode(val)
		if err != nil {
			return err
		}
		return encode(buf, inner)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		// structs and typed maps go through encoding/json first
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonical marshal %T: %w", val, err)
		}
		inner, err := decode(b)
		if err != nil {
			return err
		}
		return encode(buf, inner)
	}
	return nil
}

func writeJSON(buf *bytes.Buffer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("canonical marshal %T: %w", v, err)
	}
	buf.Write(b)
	return nil
}
