package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoObject = errors.New("no JSON object in reply")

// ExtractObject returns the span from the leftmost '{' to the rightmost '}'.
func ExtractObject(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return "", ErrNoObject
	}
	return reply[start : end+1], nil
}

// FromReply builds a payload from a completion reply that embeds a JSON
// object. Device and command must be JSON strings; value and any other keys
// are carried through untouched.
func FromReply(reply string) (Payload, error) {
	obj, err := ExtractObject(reply)
	if err != nil {
		return Payload{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return Payload{}, fmt.Errorf("parse reply object: %w", err)
	}

	device, err := stringField(fields, "device")
	if err != nil {
		return Payload{}, err
	}
	command, err := stringField(fields, "command")
	if err != nil {
		return Payload{}, err
	}

	p := Payload{device: device, command: command}
	if v, ok := fields["value"]; ok {
		p.value = raw(v)
	}

	for k, v := range fields {
		switch k {
		case "device", "command", "value":
			continue
		}
		if p.extra == nil {
			p.extra = make(map[string]json.RawMessage)
		}
		p.extra[k] = v
	}

	return p, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	rawField, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: no %q key", ErrMissingField, key)
	}
	var s string
	if err := json.Unmarshal(rawField, &s); err != nil || s == "" {
		return "", fmt.Errorf("%w: %q is not a non-empty string", ErrMissingField, key)
	}
	return s, nil
}
