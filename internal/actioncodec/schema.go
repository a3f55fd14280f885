package actioncodec

import (
	"encoding/json"
	"fmt"

	"github.com/deltakernel/txncore/internal/types"
)

// jsonType/jsonField mirror the self-describing schema JSON embedded in a
// metaData action's schemaString: primitive kinds are bare strings, nested
// kinds are objects carrying their own "type" tag.
type jsonField struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Nullable bool            `json:"nullable"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

type jsonStruct struct {
	Type   string      `json:"type"`
	Fields []jsonField `json:"fields"`
}

type jsonArray struct {
	Type          string          `json:"type"`
	ElementType   json.RawMessage `json:"elementType"`
	ContainsNull  bool            `json:"containsNull"`
}

type jsonMap struct {
	Type             string          `json:"type"`
	KeyType          json.RawMessage `json:"keyType"`
	ValueType        json.RawMessage `json:"valueType"`
	ValueContainsNull bool           `json:"valueContainsNull"`
}

type jsonTypeTag struct {
	Type string `json:"type"`
}

func encodeSchema(s types.StructType) (string, error) {
	js, err := encodeStruct(s)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(js)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeSchema(schemaString string) (types.StructType, error) {
	var js jsonStruct
	if err := json.Unmarshal([]byte(schemaString), &js); err != nil {
		return types.StructType{}, err
	}
	if js.Type != "struct" {
		return types.StructType{}, fmt.Errorf("schema root must have type %q, got %q", "struct", js.Type)
	}
	return decodeStruct(js)
}

func encodeStruct(s types.StructType) (jsonStruct, error) {
	out := jsonStruct{Type: "struct", Fields: make([]jsonField, len(s.Fields))}
	for i, f := range s.Fields {
		raw, err := encodeDataType(f.Type)
		if err != nil {
			return jsonStruct{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out.Fields[i] = jsonField{Name: f.Name, Type: raw, Nullable: f.Nullable, Metadata: f.Metadata}
	}
	return out, nil
}

func decodeStruct(js jsonStruct) (types.StructType, error) {
	out := types.StructType{Fields: make([]types.Field, len(js.Fields))}
	for i, jf := range js.Fields {
		dt, err := decodeDataType(jf.Type)
		if err != nil {
			return types.StructType{}, fmt.Errorf("field %q: %w", jf.Name, err)
		}
		out.Fields[i] = types.Field{Name: jf.Name, Type: dt, Nullable: jf.Nullable, Metadata: jf.Metadata}
	}
	return out, nil
}

func encodeDataType(t types.DataType) (json.RawMessage, error) {
	switch t.Kind {
	case types.KindStruct:
		js, err := encodeStruct(types.StructType{Fields: t.Fields})
		if err != nil {
			return nil, err
		}
		return json.Marshal(js)
	case types.KindArray:
		if t.Element == nil {
			return nil, fmt.Errorf("array type missing element type")
		}
		elem, err := encodeDataType(*t.Element)
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonArray{Type: "array", ElementType: elem, ContainsNull: t.ContainsNull || t.ElementNullable})
	case types.KindMap:
		if t.KeyType == nil || t.ValueType == nil {
			return nil, fmt.Errorf("map type missing key or value type")
		}
		key, err := encodeDataType(*t.KeyType)
		if err != nil {
			return nil, err
		}
		val, err := encodeDataType(*t.ValueType)
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonMap{Type: "map", KeyType: key, ValueType: val, ValueContainsNull: t.ValueContainsNull})
	case types.KindDecimal:
		return json.Marshal(fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale))
	default:
		return json.Marshal(string(t.Kind))
	}
}

func decodeDataType(raw json.RawMessage) (types.DataType, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return decodePrimitive(asString)
	}

	var tag jsonTypeTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return types.DataType{}, fmt.Errorf("unrecognized type shape: %w", err)
	}
	switch tag.Type {
	case "struct":
		var js jsonStruct
		if err := json.Unmarshal(raw, &js); err != nil {
			return types.DataType{}, err
		}
		st, err := decodeStruct(js)
		if err != nil {
			return types.DataType{}, err
		}
		return types.DataType{Kind: types.KindStruct, Fields: st.Fields}, nil
	case "array":
		var ja jsonArray
		if err := json.Unmarshal(raw, &ja); err != nil {
			return types.DataType{}, err
		}
		elem, err := decodeDataType(ja.ElementType)
		if err != nil {
			return types.DataType{}, err
		}
		return types.DataType{Kind: types.KindArray, Element: &elem, ContainsNull: ja.ContainsNull}, nil
	case "map":
		var jm jsonMap
		if err := json.Unmarshal(raw, &jm); err != nil {
			return types.DataType{}, err
		}
		key, err := decodeDataType(jm.KeyType)
		if err != nil {
			return types.DataType{}, err
		}
		val, err := decodeDataType(jm.ValueType)
		if err != nil {
			return types.DataType{}, err
		}
		return types.DataType{Kind: types.KindMap, KeyType: &key, ValueType: &val, ValueContainsNull: jm.ValueContainsNull}, nil
	default:
		return types.DataType{}, fmt.Errorf("unrecognized nested type tag %q", tag.Type)
	}
}

func decodePrimitive(s string) (types.DataType, error) {
	if precision, scale, ok := parseDecimal(s); ok {
		return types.DataType{Kind: types.KindDecimal, Precision: precision, Scale: scale}, nil
	}
	switch types.Kind(s) {
	case types.KindBoolean, types.KindByte, types.KindShort, types.KindInteger, types.KindLong,
		types.KindFloat, types.KindDouble, types.KindString, types.KindBinary, types.KindDate,
		types.KindTimestamp, types.KindTimestampNtz, types.KindVariant:
		return types.DataType{Kind: types.Kind(s)}, nil
	default:
		return types.DataType{}, fmt.Errorf("unrecognized primitive type %q", s)
	}
}

func parseDecimal(s string) (precision, scale int, ok bool) {
	const prefix, suffix = "decimal(", ")"
	if len(s) < len(prefix)+len(suffix) || s[:len(prefix)] != prefix || s[len(s)-1:] != suffix {
		return 0, 0, false
	}
	body := s[len(prefix) : len(s)-1]
	comma := -1
	for i, c := range body {
		if c == ',' {
			comma = i
			break
		}
	}
	if comma < 0 {
		return 0, 0, false
	}
	p, okP := parseUint(body[:comma])
	sc, okS := parseUint(body[comma+1:])
	if !okP || !okS {
		return 0, 0, false
	}
	return p, sc, true
}

func parseUint(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
