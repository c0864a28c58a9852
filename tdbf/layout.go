package tdbf

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// fieldKind is the compiled interpretation of a column. It folds the type
// code, the field length and the dialect into one tag so that nothing has
// to re-derive parsing rules per record.
type fieldKind int

const (
	kindCharacter fieldKind = iota
	kindNumeric
	kindFloat
	kindLogical
	kindDate
	kindInteger
	kindDouble
	kindCurrency
	kindDateTime
	kindMemoText   // M and G, block pointer, body in the file encoding
	kindMemoBinary // B and P, block pointer, raw body
	kindVarInt16   // Flagship V/X of length 2
	kindVarDate    // V/X of length 3, short date
	kindVarInt32   // V/X of length 4
	kindVarDouble  // Flagship V/X of length 8
	kindVarText    // remaining V/X shapes and unrecognized types, raw text
)

// slot is one fixed-width span of the record.
type slot struct {
	column   *Column
	kind     fieldKind
	offset   int // byte offset inside the record, deletion marker included
	width    int
	encode   bool // value passes through the encoding converter
	writable bool
}

// layout is the compiled record layout: the ordered slots plus the total
// record size including the deletion marker.
type layout struct {
	slots      []slot
	recordSize int
}

// compileLayout turns the ordered column list into a record layout under
// the rules of the given dialect.
func compileLayout(columns []*Column, dialect Dialect) *layout {
	l := &layout{
		slots: make([]slot, 0, len(columns)),
	}
	offset := 1 // the deletion marker owns byte 0
	for _, column := range columns {
		s := slot{
			column:   column,
			offset:   offset,
			width:    column.Length,
			writable: true,
		}
		switch column.Type {
		case Character:
			s.kind = kindCharacter
			s.encode = true
		case Numeric:
			s.kind = kindNumeric
		case Float:
			s.kind = kindFloat
		case Logical:
			s.kind = kindLogical
		case Date:
			s.kind = kindDate
		case Integer, Autoincrement:
			s.kind = kindInteger
		case Double:
			s.kind = kindDouble
		case Currency:
			s.kind = kindCurrency
		case DateTime, Timestamp:
			s.kind = kindDateTime
		case Memo, General:
			s.kind = kindMemoText
			s.encode = true
		case Blob, Picture:
			s.kind = kindMemoBinary
		case Varying, VariantX:
			s.writable = false
			switch {
			case dialect.Flagship && column.Length == 2:
				s.kind = kindVarInt16
			case column.Length == 3:
				s.kind = kindVarDate
			case column.Length == 4:
				s.kind = kindVarInt32
			case dialect.Flagship && column.Length == 8:
				s.kind = kindVarDouble
			default:
				s.kind = kindVarText
				s.encode = true
			}
		default:
			debugf("Column %s has unrecognized type %s, reading raw text", column.Name, column.Type)
			s.kind = kindVarText
			s.encode = true
			s.writable = false
		}
		offset += s.width
		l.slots = append(l.slots, s)
	}
	l.recordSize = offset
	return l
}

func (l *layout) slotByName(name string) *slot {
	for i := range l.slots {
		if strings.EqualFold(l.slots[i].column.Name, name) {
			return &l.slots[i]
		}
	}
	return nil
}

/**
 *	################################################################
 *	#				Post-read transforms
 *	################################################################
 */

// readField converts the raw slot bytes into the field value. Memo
// pointers are resolved through the memo store of the table.
func (t *Table) readField(s *slot, raw []byte) (interface{}, error) {
	switch s.kind {
	case kindCharacter:
		str, err := t.decodeText(raw, s)
		if err != nil {
			return nil, err
		}
		return strings.TrimRight(str, " "), nil
	case kindNumeric:
		trimmed := strings.TrimSpace(string(raw))
		if len(trimmed) == 0 {
			return nil, nil
		}
		if s.column.Decimals == 0 {
			v, err := strconv.ParseInt(trimmed, 10, 64)
			if err != nil {
				return nil, newError("tdbf-layout-readfield-1", err)
			}
			return v, nil
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, newError("tdbf-layout-readfield-2", err)
		}
		return v, nil
	case kindFloat:
		trimmed := strings.TrimSpace(string(raw))
		if len(trimmed) == 0 {
			return nil, nil
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, newError("tdbf-layout-readfield-3", err)
		}
		return v, nil
	case kindLogical:
		switch raw[0] {
		case 'Y', 'y', 'T', 't':
			return true, nil
		case 'N', 'n', 'F', 'f':
			return false, nil
		}
		return nil, nil
	case kindDate:
		str := strings.TrimSpace(string(raw))
		return str, nil
	case kindInteger:
		return int32(binary.LittleEndian.Uint32(raw)), nil
	case kindDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	case kindCurrency:
		return currencyToString(int64(binary.LittleEndian.Uint64(raw))), nil
	case kindDateTime:
		return JulianPair{
			Days:         int(int32(binary.LittleEndian.Uint32(raw[:4]))),
			Milliseconds: int(binary.LittleEndian.Uint32(raw[4:8])),
		}, nil
	case kindMemoText:
		body, err := t.readMemoSlot(raw)
		if err != nil {
			return nil, err
		}
		str, err := t.decodeText(body, s)
		if err != nil {
			return nil, err
		}
		return str, nil
	case kindMemoBinary:
		body, err := t.readMemoSlot(raw)
		if err != nil {
			return nil, err
		}
		return body, nil
	case kindVarInt16:
		return int16(binary.LittleEndian.Uint16(raw)), nil
	case kindVarDate:
		return binToShortDate([3]byte{raw[0], raw[1], raw[2]}), nil
	case kindVarInt32:
		return int32(binary.LittleEndian.Uint32(raw)), nil
	case kindVarDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	case kindVarText:
		return t.decodeText(raw, s)
	}
	return nil, newErrorf("tdbf-layout-readfield-4", "unsupported field kind %d at column %s", s.kind, s.column.Name)
}

func (t *Table) decodeText(raw []byte, s *slot) (string, error) {
	if !s.encode || t.convert == nil {
		return string(raw), nil
	}
	out, err := t.convert.Decode(raw)
	if err != nil {
		return string(raw), newError("tdbf-layout-decodetext-1", err)
	}
	return string(out), nil
}

func (t *Table) encodeText(value string, s *slot) ([]byte, error) {
	if !s.encode || t.convert == nil {
		return []byte(value), nil
	}
	out, err := t.convert.Encode([]byte(value))
	if err != nil {
		return nil, newError("tdbf-layout-encodetext-1", err)
	}
	return out, nil
}

// readMemoSlot parses the ASCII block pointer and reads the memo body.
func (t *Table) readMemoSlot(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 {
		return nil, nil
	}
	pointer, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil {
		return nil, newError("tdbf-layout-readmemoslot-1", err)
	}
	if pointer == 0 || t.memo == nil {
		return nil, nil
	}
	return t.memo.read(uint32(pointer))
}

/**
 *	################################################################
 *	#				Pre-write transforms
 *	################################################################
 */

// writeField converts the field value into its fixed-width slot bytes.
// Memo values are buffered in the memo store, the returned bytes hold the
// block pointer.
func (t *Table) writeField(s *slot, value interface{}) ([]byte, error) {
	if !s.writable {
		return nil, newErrorf("tdbf-layout-writefield-1", "writing values of type %s is not supported at column %s", s.column.Type, s.column.Name)
	}
	switch s.kind {
	case kindCharacter:
		str := ""
		if value != nil {
			c, ok := value.(string)
			if !ok {
				return nil, newErrorf("tdbf-layout-writefield-2", "invalid value %T for column %s of type C", value, s.column.Name)
			}
			str = c
		}
		raw, err := t.encodeText(str, s)
		if err != nil {
			return nil, err
		}
		return padRight(raw, s.width), nil
	case kindNumeric:
		return formatNumber(value, s.width, s.column.Decimals, s.column.Name)
	case kindFloat:
		return formatNumber(value, s.width, s.column.Decimals, s.column.Name)
	case kindLogical:
		if value == nil {
			return []byte{'?'}, nil
		}
		b, ok := value.(bool)
		if !ok {
			return nil, newErrorf("tdbf-layout-writefield-3", "invalid value %T for column %s of type L", value, s.column.Name)
		}
		if b {
			return []byte{'T'}, nil
		}
		return []byte{'F'}, nil
	case kindDate:
		str := ""
		if value != nil {
			switch v := value.(type) {
			case string:
				str = v
			case time.Time:
				str = formatDate(v)
			default:
				return nil, newErrorf("tdbf-layout-writefield-4", "invalid value %T for column %s of type D", value, s.column.Name)
			}
		}
		if len(str) == 0 {
			return []byte(strings.Repeat(" ", s.width)), nil
		}
		if len(str) != s.width {
			return nil, newErrorf("tdbf-layout-writefield-5", "invalid date %q for column %s, expected YYYYMMDD", str, s.column.Name)
		}
		return []byte(str), nil
	case kindInteger:
		i, err := toInt(value)
		if err != nil {
			return nil, newError("tdbf-layout-writefield-6", err)
		}
		raw := make([]byte, 4)
		binary.LittleEndian.PutUint32(raw, uint32(int32(i)))
		return raw, nil
	case kindDouble:
		f, err := toFloat(value)
		if err != nil {
			return nil, newError("tdbf-layout-writefield-7", err)
		}
		raw := make([]byte, 8)
		binary.LittleEndian.PutUint64(raw, math.Float64bits(f))
		return raw, nil
	case kindCurrency:
		v, err := toCurrency(value)
		if err != nil {
			return nil, newError("tdbf-layout-writefield-8", err)
		}
		raw := make([]byte, 8)
		binary.LittleEndian.PutUint64(raw, uint64(v))
		return raw, nil
	case kindDateTime:
		var pair JulianPair
		switch v := value.(type) {
		case JulianPair:
			pair = v
		case time.Time:
			pair = JulianPairFromUnix(v.Unix())
		case nil:
		default:
			return nil, newErrorf("tdbf-layout-writefield-9", "invalid value %T for column %s of type T", value, s.column.Name)
		}
		raw := make([]byte, 8)
		binary.LittleEndian.PutUint32(raw[:4], uint32(int32(pair.Days)))
		binary.LittleEndian.PutUint32(raw[4:8], uint32(pair.Milliseconds))
		return raw, nil
	case kindMemoText:
		if value == nil {
			return []byte(strings.Repeat(" ", s.width)), nil
		}
		str, ok := value.(string)
		if !ok {
			return nil, newErrorf("tdbf-layout-writefield-10", "invalid value %T for column %s of type %s", value, s.column.Name, s.column.Type)
		}
		body, err := t.encodeText(str, s)
		if err != nil {
			return nil, err
		}
		return t.writeMemoSlot(body, s)
	case kindMemoBinary:
		if value == nil {
			return []byte(strings.Repeat(" ", s.width)), nil
		}
		var body []byte
		switch v := value.(type) {
		case []byte:
			body = v
		case string:
			body = []byte(v)
		default:
			return nil, newErrorf("tdbf-layout-writefield-11", "invalid value %T for column %s of type %s", value, s.column.Name, s.column.Type)
		}
		return t.writeMemoSlot(body, s)
	}
	return nil, newErrorf("tdbf-layout-writefield-12", "unsupported field kind %d at column %s", s.kind, s.column.Name)
}

// writeMemoSlot buffers the memo body and renders its block pointer into
// the slot. A memo file that can not be written leaves the slot blank.
func (t *Table) writeMemoSlot(body []byte, s *slot) ([]byte, error) {
	pointer, ok := t.writeMemoValue(body)
	if !ok {
		return []byte(strings.Repeat(" ", s.width)), nil
	}
	raw := fmt.Sprintf("%*d", s.width, pointer)
	if len(raw) > s.width {
		return nil, newErrorf("tdbf-layout-writememoslot-1", "memo pointer %d does not fit column %s", pointer, s.column.Name)
	}
	return []byte(raw), nil
}

func formatNumber(value interface{}, width int, decimals int, name string) ([]byte, error) {
	if value == nil {
		return []byte(strings.Repeat(" ", width)), nil
	}
	if s, ok := value.(string); ok && len(strings.TrimSpace(s)) == 0 {
		return []byte(strings.Repeat(" ", width)), nil
	}
	var raw string
	if decimals > 0 {
		f, err := toFloat(value)
		if err != nil {
			return nil, newError("tdbf-layout-formatnumber-1", err)
		}
		raw = strconv.FormatFloat(f, 'f', decimals, 64)
	} else {
		switch value.(type) {
		case float32, float64:
			f, _ := toFloat(value)
			raw = strconv.FormatFloat(f, 'f', -1, 64)
		default:
			i, err := toInt(value)
			if err != nil {
				return nil, newError("tdbf-layout-formatnumber-2", err)
			}
			raw = strconv.FormatInt(i, 10)
		}
	}
	if len(raw) > width {
		return nil, newErrorf("tdbf-layout-formatnumber-3", "value %s does not fit column %s of width %d", raw, name, width)
	}
	return []byte(fmt.Sprintf("%*s", width, raw)), nil
}

func padRight(raw []byte, width int) []byte {
	out := make([]byte, width)
	for i := range out {
		out[i] = byte(Blank)
	}
	copy(out, raw)
	return out
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if len(trimmed) == 0 {
			return 0, nil
		}
		return strconv.ParseInt(trimmed, 10, 64)
	}
	return 0, fmt.Errorf("can not convert %T to integer", value)
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if len(trimmed) == 0 {
			return 0, nil
		}
		return strconv.ParseFloat(trimmed, 64)
	}
	return 0, fmt.Errorf("can not convert %T to float", value)
}

func toCurrency(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		return stringToCurrency(v)
	case float64:
		return int64(math.Round(v * 10000)), nil
	case int:
		return int64(v) * 10000, nil
	case int64:
		return v * 10000, nil
	}
	return 0, fmt.Errorf("can not convert %T to currency", value)
}
