package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrMissingField = errors.New("missing device or command")
	ErrUnknownWord  = errors.New("value not in vocabulary")
	ErrTooManyValue = errors.New("at most one value allowed")
)

// Vocabulary lists the string values a rule payload may carry.
var Vocabulary = map[string]struct{}{
	"indoor":  {},
	"red":     {},
	"yellow":  {},
	"green":   {},
	"rainbow": {},
	"low":     {},
	"mid":     {},
	"high":    {},
}

type valueKind uint8

const (
	noValue valueKind = iota
	intValue
	wordValue
	textValue
	rawValue
)

// Value is the optional third field of a payload.
type Value struct {
	kind valueKind
	n    int
	s    string
	raw  json.RawMessage
}

func Int(n int) Value { return Value{kind: intValue, n: n} }

// Word is a vocabulary string such as a colour or a brightness level.
func Word(s string) Value { return Value{kind: wordValue, s: s} }

// Text is free text, used for speech replies.
func Text(s string) Value { return Value{kind: textValue, s: s} }

func raw(b json.RawMessage) Value { return Value{kind: rawValue, raw: b} }

func (v Value) IsSet() bool { return v.kind != noValue }

func (v Value) Int() (int, bool) {
	return v.n, v.kind == intValue
}

func (v Value) String() string {
	switch v.kind {
	case intValue:
		return strconv.Itoa(v.n)
	case wordValue, textValue:
		return v.s
	case rawValue:
		return string(v.raw)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case intValue:
		return []byte(strconv.Itoa(v.n)), nil
	case wordValue, textValue:
		return encode(v.s)
	case rawValue:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

// Payload is a single device command as understood by the vehicle controller.
type Payload struct {
	device  string
	command string
	value   Value
	extra   map[string]json.RawMessage
}

// Build is the only way to assemble a rule payload.
func Build(device, command string, value ...Value) (Payload, error) {
	if device == "" || command == "" {
		return Payload{}, ErrMissingField
	}
	if len(value) > 1 {
		return Payload{}, ErrTooManyValue
	}

	p := Payload{device: device, command: command}
	if len(value) == 1 {
		v := value[0]
		if v.kind == wordValue {
			if _, ok := Vocabulary[v.s]; !ok {
				return Payload{}, fmt.Errorf("%w: %q", ErrUnknownWord, v.s)
			}
		}
		p.value = v
	}
	return p, nil
}

// MustBuild panics on invalid input. Use only with constant arguments.
func MustBuild(device, command string, value ...Value) Payload {
	p, err := Build(device, command, value...)
	if err != nil {
		panic("protocol: " + err.Error())
	}
	return p
}

func (p Payload) Device() string  { return p.device }
func (p Payload) Command() string { return p.command }
func (p Payload) Value() Value    { return p.value }

func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := encode(key)
		if err != nil {
			return err
		}
		val, err := encode(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	if err := write("device", p.device); err != nil {
		return nil, err
	}
	if err := write("command", p.command); err != nil {
		return nil, err
	}
	if p.value.IsSet() {
		if err := write("value", p.value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(p.extra))
	for k := range p.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, p.extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Line returns the newline-terminated wire form.
func (p Payload) Line() ([]byte, error) {
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (p Payload) String() string {
	b, err := p.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("{%s %s %s}", p.device, p.command, p.value)
	}
	return string(b)
}

// encode marshals v without HTML escaping so non-ASCII and <>& go out as is.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
