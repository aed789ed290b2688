package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// StringList holds restaurant cuisine tags. Stored documents may carry an
// array, a single tag, or a comma separated string like "Indian, Mughlai".
type StringList []string

func (s *StringList) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*s = nil
		return nil
	case bsontype.Array:
		var values []string
		if err := bson.UnmarshalValue(t, data, &values); err != nil {
			return err
		}
		*s = normalizeTags(values)
		return nil
	case bsontype.String:
		var value string
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		*s = normalizeTags(strings.Split(value, ","))
		return nil
	default:
		return fmt.Errorf("cuisine tags: unsupported BSON type %s", t)
	}
}

func (s StringList) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue([]string(normalizeTags(s)))
}

// UnmarshalJSON mirrors the BSON decoding for seed files and admin tooling.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = normalizeTags(strings.Split(single, ","))
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("cuisine tags: %w", err)
	}
	*s = normalizeTags(values)
	return nil
}

// Has reports whether the list contains tag, ignoring case.
func (s StringList) Has(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, v := range s {
		if strings.EqualFold(v, tag) {
			return true
		}
	}
	return false
}

// normalizeTags trims entries and drops empty and repeated tags, keeping the
// first spelling seen.
func normalizeTags(values []string) StringList {
	out := make(StringList, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || out.Has(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
