// Package codec converts chair records to and from their JSON wire form.
//
// A payload is accepted only when it is a UTF-8 JSON object carrying a string
// name ("Name", or "Model" as sent by the UDP broadcaster), an integral
// "MaxWeight" and a boolean "HasPillow". Unknown keys are ignored. Anything
// else is rejected as a whole; records are never partially filled.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"chairgate/pkg/model"
)

const (
	FieldName      = "Name"
	FieldModel     = "Model"
	FieldMaxWeight = "MaxWeight"
	FieldHasPillow = "HasPillow"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed record")

// Codec encodes records using NameField as the key for Record.Name.
// The zero value encodes with "Name".
type Codec struct {
	NameField string
}

// Default is the codec used by the stream path.
var Default = Codec{NameField: FieldName}

// New returns a codec that writes the record name under nameField.
func New(nameField string) Codec {
	if nameField == "" {
		nameField = FieldName
	}
	return Codec{NameField: nameField}
}

// Decode parses data with the default codec.
func Decode(data []byte) (model.Record, error) { return Default.Decode(data) }

// Encode serializes rec with the default codec.
func Encode(rec model.Record) ([]byte, error) { return Default.Encode(rec) }

// Decode parses one record. The name key is looked up as c.NameField first,
// then "Name", then "Model".
func (c Codec) Decode(data []byte) (model.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return model.Record{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if !utf8.Valid(data) {
		return model.Record{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformed)
	}
	if !gjson.ValidBytes(data) {
		return model.Record{}, fmt.Errorf("%w: payload is not valid JSON", ErrMalformed)
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return model.Record{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformed)
	}

	name, err := c.decodeName(root)
	if err != nil {
		return model.Record{}, err
	}

	weight := root.Get(FieldMaxWeight)
	if !weight.Exists() {
		return model.Record{}, fmt.Errorf("%w: missing %s", ErrMalformed, FieldMaxWeight)
	}
	if weight.Type != gjson.Number {
		return model.Record{}, fmt.Errorf("%w: %s must be a number", ErrMalformed, FieldMaxWeight)
	}
	w, err := strconv.ParseInt(weight.Raw, 10, strconv.IntSize)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: %s must be an integer, got %s", ErrMalformed, FieldMaxWeight, weight.Raw)
	}

	pillow := root.Get(FieldHasPillow)
	if !pillow.Exists() {
		return model.Record{}, fmt.Errorf("%w: missing %s", ErrMalformed, FieldHasPillow)
	}
	if pillow.Type != gjson.True && pillow.Type != gjson.False {
		return model.Record{}, fmt.Errorf("%w: %s must be a boolean", ErrMalformed, FieldHasPillow)
	}

	return model.Record{
		Name:      name,
		MaxWeight: int(w),
		HasPillow: pillow.Bool(),
	}, nil
}

func (c Codec) decodeName(root gjson.Result) (string, error) {
	keys := []string{FieldName, FieldModel}
	if c.NameField != "" && c.NameField != FieldName {
		keys = append([]string{c.NameField}, keys...)
	}
	for _, key := range keys {
		v := root.Get(gjsonKey(key))
		if !v.Exists() {
			continue
		}
		if v.Type != gjson.String {
			return "", fmt.Errorf("%w: %s must be a string", ErrMalformed, key)
		}
		return v.Str, nil
	}
	return "", fmt.Errorf("%w: missing %s", ErrMalformed, FieldName)
}

// Encode serializes rec as a JSON object with a stable key order.
func (c Codec) Encode(rec model.Record) ([]byte, error) {
	nameField := c.NameField
	if nameField == "" {
		nameField = FieldName
	}
	key, err := json.Marshal(nameField)
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(rec.Name)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 64+len(name))
	buf = append(buf, '{')
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = append(buf, name...)
	buf = append(buf, `,"`+FieldMaxWeight+`":`...)
	buf = strconv.AppendInt(buf, int64(rec.MaxWeight), 10)
	buf = append(buf, `,"`+FieldHasPillow+`":`...)
	buf = strconv.AppendBool(buf, rec.HasPillow)
	buf = append(buf, '}')
	return buf, nil
}

// gjsonKey escapes path metacharacters so key is matched literally.
func gjsonKey(key string) string {
	var b bytes.Buffer
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
