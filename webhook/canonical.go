package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// CanonicalJSON re-encodes a JSON document into the form both sides sign:
// object keys sorted recursively, no insignificant whitespace, and numbers
// with no fractional part written as integers. Two bodies that differ only
// in key order or float formatting produce identical canonical bytes.
func CanonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := writeCanonical(buf, doc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		return writeCanonicalNumber(buf, v)

	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	}
}

// writeCanonicalNumber collapses integral floats, 5.0 becomes 5, so senders
// that serialize counters as floats still match senders that use integers.
func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		fmt.Fprintf(buf, "%d", i)
		return nil
	}

	f, err := n.Float64()
	if err != nil {
		return err
	}

	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		fmt.Fprintf(buf, "%d", int64(f))
		return nil
	}

	buf.WriteString(n.String())
	return nil
}
