package structuredtable

import "fmt"

// FieldCode is a fixed-width integer type code, following the letter
// convention of Python's struct module: B/H/I/Q for unsigned 8/16/32/64
// bit, lower case for signed, all little-endian.
type FieldCode byte

const (
	U8  FieldCode = 'B'
	U16 FieldCode = 'H'
	U32 FieldCode = 'I'
	U64 FieldCode = 'Q'
	I8  FieldCode = 'b'
	I16 FieldCode = 'h'
	I32 FieldCode = 'i'
	I64 FieldCode = 'q'
)

// Size returns the field's width in bytes, or 0 if c is not a recognized
// code.
func (c FieldCode) Size() int {
	switch c {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32:
		return 4
	case U64, I64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether c is a signed integer code.
func (c FieldCode) Signed() bool {
	switch c {
	case I8, I16, I32, I64:
		return true
	default:
		return false
	}
}

func (c FieldCode) valid() bool { return c.Size() > 0 }

// Shape is table-wide metadata describing a structured record: an
// ordered list of field names and their parallel integer widths. Rows
// are packed according to this layout; the shape itself is not part of
// any one row.
type Shape struct {
	fields []string
	format []FieldCode
	offset []int
	size   int
}

// NewShape validates fields/format and computes each field's byte offset
// within a packed row.
func NewShape(fields []string, format []FieldCode) (*Shape, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("structuredtable: shape must have at least one field")
	}
	if len(fields) != len(format) {
		return nil, fmt.Errorf("structuredtable: %d field names but %d format codes", len(fields), len(format))
	}
	seen := make(map[string]bool, len(fields))
	s := &Shape{
		fields: append([]string(nil), fields...),
		format: append([]FieldCode(nil), format...),
		offset: make([]int, len(fields)),
	}
	off := 0
	for i, name := range fields {
		if name == "" {
			return nil, fmt.Errorf("structuredtable: field %d has an empty name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("structuredtable: duplicate field name %q", name)
		}
		seen[name] = true
		if !format[i].valid() {
			return nil, fmt.Errorf("structuredtable: field %q has unknown format code %q", name, byte(format[i]))
		}
		s.offset[i] = off
		off += format[i].Size()
	}
	s.size = off
	return s, nil
}

// Size returns the packed row width in bytes.
func (s *Shape) Size() int { return s.size }

// Fields returns the shape's ordered field names.
func (s *Shape) Fields() []string { return append([]string(nil), s.fields...) }

func (s *Shape) indexOf(name string) (int, bool) {
	for i, f := range s.fields {
		if f == name {
			return i, true
		}
	}
	return 0, false
}

// Record is a (shape, packed row bytes) pair: one structured value.
type Record struct {
	shape *Shape
	row   []byte
}

// NewRecord allocates a zeroed record for shape.
func NewRecord(shape *Shape) *Record {
	return &Record{shape: shape, row: make([]byte, shape.size)}
}

// Bytes returns the record's packed row, in the layout a Table stores as
// a HashTable value.
func (r *Record) Bytes() []byte { return r.row }

func (r *Record) field(name string) (code FieldCode, off int, err error) {
	i, ok := r.shape.indexOf(name)
	if !ok {
		return 0, 0, fmt.Errorf("structuredtable: unknown field %q", name)
	}
	return r.shape.format[i], r.shape.offset[i], nil
}

// SetUint packs v into field name, little-endian. It fails with
// ValueOutOfRange if v does not fit the field's declared width.
func (r *Record) SetUint(name string, v uint64) error {
	code, off, err := r.field(name)
	if err != nil {
		return err
	}
	if code.Signed() {
		return fmt.Errorf("structuredtable: field %q is signed, use SetInt", name)
	}
	sz := code.Size()
	if sz < 8 {
		if max := uint64(1)<<(uint(sz)*8) - 1; v > max {
			return &FieldOverflowError{Field: name, Value: int64(v), Max: int64(max)}
		}
	}
	putUint(r.row[off:off+sz], v)
	return nil
}

// GetUint unpacks field name as an unsigned integer.
func (r *Record) GetUint(name string) (uint64, error) {
	code, off, err := r.field(name)
	if err != nil {
		return 0, err
	}
	if code.Signed() {
		return 0, fmt.Errorf("structuredtable: field %q is signed, use GetInt", name)
	}
	sz := code.Size()
	return getUint(r.row[off : off+sz]), nil
}

// SetInt packs v into field name, little-endian two's complement. It
// fails with ValueOutOfRange if v does not fit the field's declared
// width.
func (r *Record) SetInt(name string, v int64) error {
	code, off, err := r.field(name)
	if err != nil {
		return err
	}
	if !code.Signed() {
		return fmt.Errorf("structuredtable: field %q is unsigned, use SetUint", name)
	}
	sz := code.Size()
	if sz < 8 {
		bits := uint(sz) * 8
		max := int64(1)<<(bits-1) - 1
		min := -(int64(1) << (bits - 1))
		if v > max || v < min {
			return &FieldOverflowError{Field: name, Value: v, Max: max}
		}
	}
	putUint(r.row[off:off+sz], uint64(v))
	return nil
}

// GetInt unpacks field name as a sign-extended signed integer.
func (r *Record) GetInt(name string) (int64, error) {
	code, off, err := r.field(name)
	if err != nil {
		return 0, err
	}
	if !code.Signed() {
		return 0, fmt.Errorf("structuredtable: field %q is unsigned, use GetUint", name)
	}
	sz := code.Size()
	u := getUint(r.row[off : off+sz])
	bits := uint(sz) * 8
	if bits < 64 && u&(1<<(bits-1)) != 0 {
		u |= ^uint64(0) << bits
	}
	return int64(u), nil
}

func putUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
