package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// TableShape tags which of the two wire encodings a RawTable holds.
type TableShape int

const (
	// ShapeDense is an ordered list of ValueRow records.
	ShapeDense TableShape = iota + 1
	// ShapeSparse is a mapping of "row,col,action" keys to single values.
	ShapeSparse
)

func (shape TableShape) String() string {
	switch shape {
	case ShapeDense:
		return "dense"
	case ShapeSparse:
		return "sparse"
	}
	return "unknown"
}

// RawTable is a value table as received, before normalization. Exactly one of
// Dense or Sparse is meaningful, per Shape.
type RawTable struct {
	Shape  TableShape
	Dense  []ValueRow
	Sparse map[string]*float64
}

// DenseTable wraps rows as a RawTable.
func DenseTable(rows ...ValueRow) RawTable {
	return RawTable{Shape: ShapeDense, Dense: rows}
}

// SparseTable wraps keyed values as a RawTable.
func SparseTable(entries map[string]*float64) RawTable {
	return RawTable{Shape: ShapeSparse, Sparse: entries}
}

// DecodeRawTable decodes either wire shape: a JSON array of records is dense, a
// JSON object is sparse. Anything else is ErrMalformedPayload.
func DecodeRawTable(data []byte) (raw RawTable, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		err = fmt.Errorf("%w: empty value table", ErrMalformedPayload)
		return
	}

	switch trimmed[0] {
	case '[':
		raw.Shape = ShapeDense
		if err = json.Unmarshal(trimmed, &raw.Dense); err != nil {
			err = fmt.Errorf("%w: dense value table: %v", ErrMalformedPayload, err)
		}
	case '{':
		raw.Shape = ShapeSparse
		if err = json.Unmarshal(trimmed, &raw.Sparse); err != nil {
			err = fmt.Errorf("%w: sparse value table: %v", ErrMalformedPayload, err)
		}
	default:
		err = fmt.Errorf("%w: value table is neither a record list nor a mapping: %.32s", ErrMalformedPayload, trimmed)
	}
	return
}

// MarshalJSON writes the table back in its own shape.
func (raw RawTable) MarshalJSON() ([]byte, error) {
	switch raw.Shape {
	case ShapeDense:
		if raw.Dense == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(raw.Dense)
	case ShapeSparse:
		if raw.Sparse == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(raw.Sparse)
	}
	return nil, fmt.Errorf("%w: cannot encode %v table", ErrMalformedPayload, raw.Shape)
}

// KeyError describes a single rejected entry of a table payload. The rest of the
// payload is still normalized.
type KeyError struct {
	Key    string
	Reason string
}

func (ke KeyError) Error() string {
	return fmt.Sprintf("%v: key %q: %s", ErrMalformedPayload, ke.Key, ke.Reason)
}

func (ke KeyError) Unwrap() error {
	return ErrMalformedPayload
}

// SparseKey encodes a sparse table key.
func SparseKey(p Position, a Action) string {
	return fmt.Sprintf("%d,%d,%d", p.Row, p.Col, int(a))
}

// ParseSparseKey decodes "row,col,action" into its position and action.
func ParseSparseKey(key string) (Position, Action, error) {
	parts := strings.Split(key, ",")
	if len(parts) != 3 {
		return Position{}, 0, KeyError{Key: key, Reason: "want three comma separated integers"}
	}

	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Position{}, 0, KeyError{Key: key, Reason: fmt.Sprintf("%q is not an integer", part)}
		}
		nums[i] = n
	}

	if nums[0] < 0 || nums[1] < 0 {
		return Position{}, 0, KeyError{Key: key, Reason: "negative coordinate"}
	}
	action := Action(nums[2])
	if !action.Valid() {
		return Position{}, 0, KeyError{Key: key, Reason: fmt.Sprintf("action index %d outside 0..%d", nums[2], NumActions-1)}
	}
	return Position{Row: nums[0], Col: nums[1]}, action, nil
}

// Normalize converts either wire shape into a ValueTable built from this payload
// only. Entries that cannot be decoded are skipped and returned as rejects; a
// payload of unknown shape fails with ErrMalformedPayload and no table.
func Normalize(raw RawTable) (table ValueTable, rejects []KeyError, err error) {
	switch raw.Shape {
	case ShapeDense:
		table = make(ValueTable, len(raw.Dense))
		for _, row := range raw.Dense {
			if _, dup := table[row.State]; dup {
				rejects = append(rejects, KeyError{Key: row.State.String(), Reason: "duplicate state"})
				continue
			}
			table[row.State] = row
		}
	case ShapeSparse:
		table = ValueTable{}
		// Sorted so that rejects are reported deterministically.
		keys := maps.Keys(raw.Sparse)
		slices.Sort(keys)
		for _, key := range keys {
			p, action, keyErr := ParseSparseKey(key)
			if keyErr != nil {
				rejects = append(rejects, keyErr.(KeyError))
				continue
			}
			row, ok := table[p]
			if !ok {
				row = ValueRow{State: p}
			}
			if v := raw.Sparse[key]; v != nil {
				row.Values[action] = Float(*v)
			}
			table[p] = row
		}
	default:
		err = fmt.Errorf("%w: value table shape %v", ErrMalformedPayload, raw.Shape)
	}
	return
}

// Sparse converts a table into the keyed wire shape. Unknown values are omitted.
func (table ValueTable) Sparse() map[string]*float64 {
	entries := map[string]*float64{}
	for p, row := range table {
		for _, a := range Actions {
			if v, ok := row.Values.Known(a); ok {
				entries[SparseKey(p, a)] = Float(v)
			}
		}
	}
	return entries
}
