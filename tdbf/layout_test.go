package tdbf

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func testLayout(t *testing.T, columns []*Column, dialect Dialect) (*Table, *layout) {
	t.Helper()
	l := compileLayout(columns, dialect)
	table := &Table{
		columns: columns,
		layout:  l,
		dialect: dialect,
		handler: func(Condition, ...interface{}) {},
	}
	return table, l
}

func TestCompileLayout_Offsets(t *testing.T) {
	columns := []*Column{
		{Name: "ID", Type: Numeric, Length: 5},
		{Name: "NAME", Type: Character, Length: 10},
		{Name: "BORN", Type: Date, Length: 8},
	}
	_, l := testLayout(t, columns, dialectFor(defaultVersion))
	if l.recordSize != 1+5+10+8 {
		t.Errorf("expected record size 24, got %d", l.recordSize)
	}
	expected := []int{1, 6, 16}
	for i, s := range l.slots {
		if s.offset != expected[i] {
			t.Errorf("slot %d: expected offset %d, got %d", i, expected[i], s.offset)
		}
	}
}

func TestCompileLayout_EncodeFlags(t *testing.T) {
	columns := []*Column{
		{Name: "NAME", Type: Character, Length: 10},
		{Name: "ID", Type: Numeric, Length: 5},
		{Name: "NOTE", Type: Memo, Length: 10},
		{Name: "RAW", Type: Blob, Length: 10},
	}
	_, l := testLayout(t, columns, dialectFor(defaultVersion))
	expected := []bool{true, false, true, false}
	for i, s := range l.slots {
		if s.encode != expected[i] {
			t.Errorf("slot %d (%s): expected encode %v", i, s.column.Name, expected[i])
		}
	}
}

func TestCompileLayout_FlagshipVariants(t *testing.T) {
	flagship := dialectFor(0xB3)
	tests := []struct {
		length   int
		kind     fieldKind
		writable bool
	}{
		{2, kindVarInt16, false},
		{3, kindVarDate, false},
		{4, kindVarInt32, false},
		{8, kindVarDouble, false},
		{10, kindVarText, false},
	}
	for _, test := range tests {
		columns := []*Column{{Name: "V", Type: Varying, Length: test.length}}
		_, l := testLayout(t, columns, flagship)
		if l.slots[0].kind != test.kind {
			t.Errorf("length %d: expected kind %d, got %d", test.length, test.kind, l.slots[0].kind)
		}
		if l.slots[0].writable != test.writable {
			t.Errorf("length %d: expected writable %v", test.length, test.writable)
		}
	}
}

func TestReadField_Character(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "NAME", Type: Character, Length: 10}}, dialectFor(defaultVersion))
	value, err := table.readField(&l.slots[0], []byte("Alice     "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "Alice" {
		t.Errorf("expected Alice, got %q", value)
	}
}

func TestWriteField_Character(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "NAME", Type: Character, Length: 10}}, dialectFor(defaultVersion))
	raw, err := table.writeField(&l.slots[0], "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(raw, []byte("Bob       ")) {
		t.Errorf("expected right padded value, got %q", raw)
	}
}

func TestField_Numeric(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "ID", Type: Numeric, Length: 5}}, dialectFor(defaultVersion))
	raw, err := table.writeField(&l.slots[0], 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(raw, []byte("   42")) {
		t.Errorf("expected right aligned number, got %q", raw)
	}
	value, err := table.readField(&l.slots[0], raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != int64(42) {
		t.Errorf("expected int64 42, got %T %v", value, value)
	}
}

func TestField_NumericDecimals(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "PRICE", Type: Numeric, Length: 8, Decimals: 2}}, dialectFor(defaultVersion))
	raw, err := table.writeField(&l.slots[0], 123.45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(raw, []byte("  123.45")) {
		t.Errorf("expected formatted decimal, got %q", raw)
	}
	value, err := table.readField(&l.slots[0], raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 123.45 {
		t.Errorf("expected 123.45, got %v", value)
	}
}

func TestField_NumericBlank(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "ID", Type: Numeric, Length: 5}}, dialectFor(defaultVersion))
	value, err := table.readField(&l.slots[0], []byte("     "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != nil {
		t.Errorf("expected nil for blank numeric, got %v", value)
	}
}

func TestField_NumericOverflow(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "ID", Type: Numeric, Length: 3}}, dialectFor(defaultVersion))
	if _, err := table.writeField(&l.slots[0], 12345); err == nil {
		t.Error("expected error for value wider than the field")
	}
}

func TestField_Logical(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "OK", Type: Logical, Length: 1}}, dialectFor(defaultVersion))
	for raw, expected := range map[byte]interface{}{
		'T': true, 't': true, 'Y': true, 'y': true,
		'F': false, 'f': false, 'N': false, 'n': false,
		'?': nil, ' ': nil,
	} {
		value, err := table.readField(&l.slots[0], []byte{raw})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != expected {
			t.Errorf("byte %c: expected %v, got %v", raw, expected, value)
		}
	}
	raw, err := table.writeField(&l.slots[0], true)
	if err != nil || raw[0] != 'T' {
		t.Errorf("expected T, got %q (%v)", raw, err)
	}
	raw, err = table.writeField(&l.slots[0], false)
	if err != nil || raw[0] != 'F' {
		t.Errorf("expected F, got %q (%v)", raw, err)
	}
	raw, err = table.writeField(&l.slots[0], nil)
	if err != nil || raw[0] != '?' {
		t.Errorf("expected ?, got %q (%v)", raw, err)
	}
}

func TestField_Integer(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "N", Type: Integer, Length: 4}}, dialectFor(defaultVersion))
	raw, err := table.writeField(&l.slots[0], -12345)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := table.readField(&l.slots[0], raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != int32(-12345) {
		t.Errorf("expected int32 -12345, got %T %v", value, value)
	}
}

func TestField_Double(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "D", Type: Double, Length: 8}}, dialectFor(defaultVersion))
	raw, err := table.writeField(&l.slots[0], 3.25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bits := binary.LittleEndian.Uint64(raw); bits != math.Float64bits(3.25) {
		t.Errorf("unexpected double bits %x", bits)
	}
	value, err := table.readField(&l.slots[0], raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 3.25 {
		t.Errorf("expected 3.25, got %v", value)
	}
}

func TestField_Currency(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "Y", Type: Currency, Length: 8, Decimals: 4}}, dialectFor(defaultVersion))
	raw, err := table.writeField(&l.slots[0], "123.4567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := binary.LittleEndian.Uint64(raw); v != 1234567 {
		t.Errorf("expected on-disk value 1234567, got %d", v)
	}
	value, err := table.readField(&l.slots[0], raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "123.4567" {
		t.Errorf("expected 123.4567, got %v", value)
	}
}

func TestField_DateTime(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "T", Type: DateTime, Length: 8}}, dialectFor(defaultVersion))
	pair := JulianPair{Days: 2451545, Milliseconds: 43200000}
	raw, err := table.writeField(&l.slots[0], pair)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := table.readField(&l.slots[0], raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != pair {
		t.Errorf("expected %+v, got %+v", pair, value)
	}
}

func TestField_Date(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "D", Type: Date, Length: 8}}, dialectFor(defaultVersion))
	raw, err := table.writeField(&l.slots[0], "19600715")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(raw, []byte("19600715")) {
		t.Errorf("expected literal date bytes, got %q", raw)
	}
	value, err := table.readField(&l.slots[0], raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "19600715" {
		t.Errorf("expected 19600715, got %v", value)
	}
}

func TestField_VarDate(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "V", Type: Varying, Length: 3}}, dialectFor(defaultVersion))
	value, err := table.readField(&l.slots[0], []byte{60, 7, 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "19600715" {
		t.Errorf("expected 19600715, got %v", value)
	}
}

func TestWriteField_VarRejected(t *testing.T) {
	table, l := testLayout(t, []*Column{{Name: "V", Type: Varying, Length: 3}}, dialectFor(defaultVersion))
	if _, err := table.writeField(&l.slots[0], "19600715"); err == nil {
		t.Error("expected error writing a V field")
	}
}

func TestSlotByName(t *testing.T) {
	_, l := testLayout(t, []*Column{
		{Name: "ID", Type: Numeric, Length: 5},
		{Name: "NAME", Type: Character, Length: 10},
	}, dialectFor(defaultVersion))
	s := l.slotByName("name")
	if s == nil || s.column.Name != "NAME" {
		t.Fatal("expected to find column NAME")
	}
	if l.slotByName("MISSING") != nil {
		t.Error("expected nil for unknown column")
	}
}
