package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FormField is a single name=value pair of a presigned POST policy.
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FormFields keeps the backend's field order. Storage providers validate the
// policy against the submitted form, so fields are replayed exactly as sent.
type FormFields []FormField

func (f *FormFields) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*f = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, _ := tok.(json.Delim)
	switch d {
	case '[':
		return f.unmarshalList(b)
	case '{':
	default:
		return fmt.Errorf("form fields: expected object or array, got %v", tok)
	}

	var out FormFields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		out = append(out, FormField{Name: name, Value: fieldValue(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}

// unmarshalList reads the [{"name":..,"value":..}] spelling.
func (f *FormFields) unmarshalList(b []byte) error {
	var list []struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("form fields: %w", err)
	}

	out := make(FormFields, 0, len(list))
	for _, item := range list {
		if item.Name == "" {
			return fmt.Errorf("form fields: entry without a name")
		}
		out = append(out, FormField{Name: item.Name, Value: fieldValue(item.Value)})
	}
	*f = out
	return nil
}

// fieldValue unquotes JSON strings; other values are sent as their JSON text.
func fieldValue(raw json.RawMessage) string {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}

func (f FormFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of the first field called name.
func (f FormFields) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}
