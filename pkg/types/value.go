package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Member is one object key with its value, in document order.
type Member struct {
	Key   string
	Value Value
}

// Value is one node of a decoded payload: null, boolean, number, string,
// object or array. The zero Value is null.
type Value struct {
	kind    Kind
	boolean bool
	number  json.Number
	text    string
	members []Member
	items   []Value
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

func Number(n json.Number) Value { return Value{kind: KindNumber, number: n} }

func Int(n int64) Value { return Number(json.Number(strconv.FormatInt(n, 10))) }

func String(s string) Value { return Value{kind: KindString, text: s} }

// Object builds an object value. Later duplicates of a key replace the
// earlier value but keep its position.
func Object(members ...Member) Value {
	out := make([]Member, 0, len(members))
	index := make(map[string]int, len(members))
	for _, m := range members {
		if i, ok := index[m.Key]; ok {
			out[i].Value = m.Value
			continue
		}
		index[m.Key] = len(out)
		out = append(out, m)
	}
	return Value{kind: KindObject, members: out}
}

func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value{}, items...)}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool { return v.boolean }
func (v Value) Number() json.Number { return v.number }
func (v Value) Text() string { return v.text }
func (v Value) Members() []Member { return v.members }
func (v Value) Items() []Value { return v.items }

// Len is the member count of an object, the item count of an array, the
// byte length of a string and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindObject:
		return len(v.members)
	case KindArray:
		return len(v.items)
	case KindString:
		return len(v.text)
	}
	return 0
}

// Get returns the member value for key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Truthy reports whether v carries content: null, false, zero, the empty
// string and empty containers are all empty.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.boolean
	case KindNumber:
		f, err := v.number.Float64()
		return err != nil || f != 0
	case KindString, KindObject, KindArray:
		return v.Len() > 0
	}
	return false
}

// IsInteger reports whether v is a number without fraction or exponent.
func (v Value) IsInteger() bool {
	if v.kind != KindNumber {
		return false
	}
	_, err := strconv.ParseInt(v.number.String(), 10, 64)
	return err == nil
}

// TypeName is the JSON type of v, with integers told apart from other numbers.
func (v Value) TypeName() string {
	if v.IsInteger() {
		return "integer"
	}
	return v.kind.String()
}

// Canonical renders v as compact JSON with object keys sorted, so two
// payloads with the same content compare equal regardless of key order.
func (v Value) Canonical() string {
	var b bytes.Buffer
	writeValue(&b, v, true)
	return b.String()
}

// String renders v as compact JSON in document order.
func (v Value) String() string {
	var b bytes.Buffer
	writeValue(&b, v, false)
	return b.String()
}

func (v Value) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	writeValue(&b, v, false)
	return b.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse decodes one JSON document, keeping object keys in document order
// and numbers in their literal form.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var members []Member
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T", kt)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Object(members...), nil
		case '[':
			var items []Value
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case nil:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("unexpected token %T", tok)
}

// FromInterface converts a generic decoded value. Map keys are sorted since
// Go maps carry no order.
func FromInterface(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return Number(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Number(json.Number(strconv.FormatFloat(t, 'f', -1, 64)))
	case []any:
		items := make([]Value, 0, len(t))
		for _, it := range t {
			items = append(items, FromInterface(it))
		}
		return Array(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, 0, len(keys))
		for _, k := range keys {
			members = append(members, Member{Key: k, Value: FromInterface(t[k])})
		}
		return Object(members...)
	}
	return String(fmt.Sprint(x))
}

// Interface converts v to plain Go values (map[string]any, []any, int64,
// float64, string, bool, nil), e.g. for YAML encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.boolean
	case KindNumber:
		if n, err := v.number.Int64(); err == nil && v.IsInteger() {
			return n
		}
		if f, err := v.number.Float64(); err == nil {
			return f
		}
		return v.number.String()
	case KindString:
		return v.text
	case KindObject:
		out := make(map[string]any, len(v.members))
		for _, m := range v.members {
			out[m.Key] = m.Value.Interface()
		}
		return out
	case KindArray:
		out := make([]any, 0, len(v.items))
		for _, it := range v.items {
			out = append(out, it.Interface())
		}
		return out
	}
	return nil
}

func writeValue(b *bytes.Buffer, v Value, sorted bool) {
	switch v.kind {
	case KindBool:
		b.WriteString(strconv.FormatBool(v.boolean))
	case KindNumber:
		if v.number == "" {
			b.WriteString("0")
			return
		}
		b.WriteString(v.number.String())
	case KindString:
		writeString(b, v.text)
	case KindObject:
		members := v.members
		if sorted {
			members = append([]Member(nil), members...)
			sort.SliceStable(members, func(i, j int) bool { return members[i].Key < members[j].Key })
		}
		b.WriteByte('{')
		for i, m := range members {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, m.Key)
			b.WriteByte(':')
			writeValue(b, m.Value, sorted)
		}
		b.WriteByte('}')
	case KindArray:
		b.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, it, sorted)
		}
		b.WriteByte(']')
	default:
		b.WriteString("null")
	}
}

func writeString(b *bytes.Buffer, s string) {
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode terminates with a newline.
	b.Truncate(b.Len() - 1)
}
