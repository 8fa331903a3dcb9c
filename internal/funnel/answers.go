package funnel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind discriminates the variants of AnswerValue.
type AnswerKind int

const (
	AnswerString AnswerKind = iota
	AnswerNumber
	AnswerBool
	AnswerList
)

// AnswerValue is a closed union of the JSON value shapes a form answer may
// take: string, number, boolean, or list of strings. Objects, nulls, and
// mixed arrays are rejected at decode time so arbitrary payloads cannot leak
// into the store.
type AnswerValue struct {
	Kind AnswerKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

// AnswerMap is a session's free-form answer mapping, keyed by field name.
type AnswerMap map[string]AnswerValue

// StringAnswer returns an AnswerValue holding s.
func StringAnswer(s string) AnswerValue { return AnswerValue{Kind: AnswerString, Str: s} }

// NumberAnswer returns an AnswerValue holding n.
func NumberAnswer(n float64) AnswerValue { return AnswerValue{Kind: AnswerNumber, Num: n} }

// BoolAnswer returns an AnswerValue holding b.
func BoolAnswer(b bool) AnswerValue { return AnswerValue{Kind: AnswerBool, Bool: b} }

// ListAnswer returns an AnswerValue holding the given strings.
func ListAnswer(items ...string) AnswerValue { return AnswerValue{Kind: AnswerList, List: items} }

// MarshalJSON emits the bare JSON value for the active variant.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AnswerString:
		return json.Marshal(v.Str)
	case AnswerNumber:
		return json.Marshal(v.Num)
	case AnswerBool:
		return json.Marshal(v.Bool)
	case AnswerList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	}
	return nil, fmt.Errorf("unknown answer kind %d", v.Kind)
}

// UnmarshalJSON decodes a bare JSON value into the matching variant. Objects
// and nulls are not part of the union and fail decoding.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty answer value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = StringAnswer(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = BoolAnswer(b)
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("answer lists may contain only strings: %w", err)
		}
		*v = ListAnswer(list...)
	case '{':
		return errors.New("object answer values are not supported")
	case 'n':
		return errors.New("null answer values are not supported")
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*v = NumberAnswer(n)
	}
	return nil
}

// String renders the value for display (tables, CSV cells, spreadsheet rows).
func (v AnswerValue) String() string {
	switch v.Kind {
	case AnswerString:
		return v.Str
	case AnswerNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case AnswerBool:
		return strconv.FormatBool(v.Bool)
	case AnswerList:
		return strings.Join(v.List, "; ")
	}
	return ""
}

// Merge copies every entry of other into m, overwriting existing keys.
func (m AnswerMap) Merge(other AnswerMap) {
	for k, v := range other {
		m[k] = v
	}
}
