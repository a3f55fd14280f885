package types

// Kind is the closed set of scalar and nested shapes a DataType can take.
// This is a teaching-sized schema model, not a full Parquet/Arrow type
// system: enough to drive the type/partition whitelists and type-widening
// checks the Iceberg-compat rule engine needs.
type Kind string

const (
	KindBoolean      Kind = "boolean"
	KindByte         Kind = "byte"
	KindShort        Kind = "short"
	KindInteger      Kind = "integer"
	KindLong         Kind = "long"
	KindFloat        Kind = "float"
	KindDouble       Kind = "double"
	KindDecimal      Kind = "decimal"
	KindString       Kind = "string"
	KindBinary       Kind = "binary"
	KindDate         Kind = "date"
	KindTimestamp    Kind = "timestamp"
	KindTimestampNtz Kind = "timestamp_ntz"
	KindArray        Kind = "array"
	KindMap          Kind = "map"
	KindStruct       Kind = "struct"
	// KindVariant is reserved for Iceberg compat V3; no V2 check accepts it.
	KindVariant Kind = "variant"
)

// DataType is a tagged union over Kind. Exactly the fields relevant to Kind
// are meaningful; the rest are zero.
type DataType struct {
	Kind Kind

	// decimal(Precision, Scale)
	Precision int
	Scale     int

	// array
	Element         *DataType
	ContainsNull    bool
	ElementNullable bool

	// map
	KeyType          *DataType
	ValueType        *DataType
	ValueContainsNull bool

	// struct
	Fields []Field
}

// Field is one named, optionally nullable member of a StructType.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
	Metadata map[string]any
}

// StructType is the schema of a table: an ordered list of top-level fields.
type StructType struct {
	Fields []Field
}

// IsEmpty reports whether the schema has no fields at all.
func (s StructType) IsEmpty() bool {
	return len(s.Fields) == 0
}

// FieldNames returns the top-level field names in declaration order.
func (s StructType) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// FindField returns the top-level field with the given name, if any.
func (s StructType) FindField(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsNested reports whether the type is array, map, or struct.
func (t DataType) IsNested() bool {
	switch t.Kind {
	case KindArray, KindMap, KindStruct:
		return true
	default:
		return false
	}
}

// IsScalar is the complement of IsNested, used by the partition-column
// whitelist (partition columns may never be nested types).
func (t DataType) IsScalar() bool {
	return !t.IsNested()
}

// Leaves walks the schema and returns every leaf (non-struct,
// non-array/map-of-struct... for this model, simply every non-struct
// DataType reachable) for the type whitelist check. Struct types themselves
// are not leaves; their fields are visited recursively.
func (s StructType) Leaves() []DataType {
	var out []DataType
	var walk func(t DataType)
	walk = func(t DataType) {
		switch t.Kind {
		case KindStruct:
			for _, f := range t.Fields {
				walk(f.Type)
			}
		case KindArray:
			if t.Element != nil {
				walk(*t.Element)
			}
		case KindMap:
			if t.KeyType != nil {
				walk(*t.KeyType)
			}
			if t.ValueType != nil {
				walk(*t.ValueType)
			}
		default:
			out = append(out, t)
		}
	}
	for _, f := range s.Fields {
		walk(f.Type)
	}
	return out
}
