package tdbf

import "strings"

// Column describes one field of the table: descriptor name, type code,
// effective length, decimal count and the round-tripped indexed flag.
// The indexed flag is preserved on disk but never used for lookups.
type Column struct {
	Name     string
	Type     DataType
	Length   int
	Decimals int
	Indexed  bool
}

// newColumn validates the type specific length and precision constraints
// and fills in the fixed values where the type dictates them. The optional
// args are length and decimal count, in that order.
func newColumn(name string, dataType DataType, args ...int) (*Column, error) {
	column := &Column{
		Name: name,
		Type: dataType,
	}
	length := 0
	decimals := 0
	if len(args) > 0 {
		length = args[0]
	}
	if len(args) > 1 {
		decimals = args[1]
	}
	switch dataType {
	case Character:
		// The descriptor stores extended lengths as hi*256+lo in two single
		// bytes, 65535 is the widest representable field.
		if length < 1 || length > 65535 {
			return nil, newErrorf("tdbf-column-newcolumn-1", "invalid length %d for column %s of type C, expected 1..65535", length, name)
		}
		column.Length = length
	case Numeric:
		if length < 1 || length > 20 {
			return nil, newErrorf("tdbf-column-newcolumn-2", "invalid length %d for column %s of type N, expected 1..20", length, name)
		}
		if decimals < 0 || decimals > 255 {
			return nil, newErrorf("tdbf-column-newcolumn-3", "invalid decimal count %d for column %s of type N", decimals, name)
		}
		column.Length = length
		column.Decimals = decimals
	case Float:
		column.Length = 20
		if decimals < 0 || decimals > 255 {
			return nil, newErrorf("tdbf-column-newcolumn-4", "invalid decimal count %d for column %s of type F", decimals, name)
		}
		column.Decimals = decimals
	case Logical:
		column.Length = 1
	case Date, DateTime, Timestamp, Double:
		column.Length = 8
	case Currency:
		column.Length = 8
		column.Decimals = 4
	case Integer, Autoincrement:
		column.Length = 4
	case Memo, General, Blob, Picture:
		column.Length = 10
	case Varying, VariantX:
		return nil, newErrorf("tdbf-column-newcolumn-5", "writing columns of type %s is not supported", dataType)
	default:
		return nil, newErrorf("tdbf-column-newcolumn-6", "column type %s is not supported", dataType)
	}
	return column, nil
}

// diskName is the name as it fits the 10 byte descriptor slot.
func (c *Column) diskName() string {
	if len(c.Name) > 10 {
		return c.Name[:10]
	}
	return c.Name
}

func columnNames(columns []*Column) []string {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}
	return names
}

func findColumn(columns []*Column, name string) int {
	for i, column := range columns {
		if strings.EqualFold(column.Name, name) {
			return i
		}
	}
	return -1
}
