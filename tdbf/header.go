package tdbf

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"
)

// Header is the 32 byte table header. Integers are little-endian. The
// reserved ranges and the transaction, encryption and MDX bytes are kept
// verbatim so that open followed by close round-trips them.
type Header struct {
	Version        byte     // Version byte, selects the dialect
	Year           uint8    // Last update year - 1900
	Month          uint8    // Last update month
	Day            uint8    // Last update day
	RecordsCount   uint32   // Number of records, tombstones included
	HeaderSize     uint16   // Bytes from start of file to first record
	RecordSize     uint16   // Bytes per record, deletion marker included
	Reserved       [2]byte  // Reserved
	Transaction    byte     // Incomplete transaction flag
	Encryption     byte     // Encryption flag
	Reserved2      [12]byte // Reserved
	MDX            byte     // Production MDX flag
	LanguageDriver byte     // Language driver code, selects the encoding
	Reserved3      [2]byte  // Reserved
}

// Modified returns the last update date stored in the header.
func (h *Header) Modified() time.Time {
	return time.Date(1900+int(h.Year), time.Month(h.Month), int(h.Day), 0, 0, 0, 0, time.Local)
}

func (h *Header) setModified(date string) error {
	b, err := shortDateToBin(date)
	if err != nil {
		return newError("tdbf-header-setmodified-1", err)
	}
	h.Year = b[0]
	h.Month = b[1]
	h.Day = b[2]
	return nil
}

// descriptor is the 32 byte on-disk field descriptor record.
type descriptor struct {
	FieldName [10]byte // NUL padded column name
	Reserved  byte     // Reserved
	DataType  byte     // Column type code
	Reserved2 [4]byte  // Reserved
	Length    uint8    // Field length, low byte for extended lengths
	Decimals  uint8    // Decimal count, high length byte for extended lengths
	Reserved3 [13]byte // Reserved
	Indexed   byte     // Field is covered by an index file
}

// readHeader decodes the fixed table header. A short read yields an empty
// table: a nil header and no error.
func readHeader(handle io.ReadSeeker) (*Header, error) {
	if _, err := handle.Seek(0, io.SeekStart); err != nil {
		return nil, newError("tdbf-header-readheader-1", err)
	}
	b := make([]byte, headerSize)
	n, err := io.ReadFull(handle, b)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, newError("tdbf-header-readheader-2", err)
	}
	if n < headerSize {
		debugf("Short header read (%d bytes), treating file as empty table", n)
		return nil, nil
	}
	h := &Header{}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, h); err != nil {
		return nil, newError("tdbf-header-readheader-3", err)
	}
	return h, nil
}

// readColumns decodes descriptor records starting at byte 32 until the
// ColumnEnd marker or EOF. The rest of the record holding the marker is
// discarded.
func readColumns(handle io.ReadSeeker, dialect Dialect) ([]*Column, error) {
	if _, err := handle.Seek(headerSize, io.SeekStart); err != nil {
		return nil, newError("tdbf-header-readcolumns-1", err)
	}
	columns := make([]*Column, 0)
	b := make([]byte, descriptorSize)
	for {
		n, err := io.ReadFull(handle, b)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if n == 0 || Marker(b[0]) == ColumnEnd {
				break
			}
			if n < descriptorSize {
				break
			}
		} else if err != nil {
			return nil, newError("tdbf-header-readcolumns-2", err)
		}
		if Marker(b[0]) == ColumnEnd {
			break
		}
		d := &descriptor{}
		if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, d); err != nil {
			return nil, newError("tdbf-header-readcolumns-3", err)
		}
		columns = append(columns, d.toColumn(dialect))
	}
	return columns, nil
}

func (d *descriptor) toColumn(dialect Dialect) *Column {
	column := &Column{
		Name:     string(bytes.TrimRight(d.FieldName[:], "\x00")),
		Type:     DataType(d.DataType),
		Length:   int(d.Length),
		Decimals: int(d.Decimals),
		Indexed:  d.Indexed != 0,
	}
	switch {
	case dialect.DecimalAsLengthHigh && (column.Type == Numeric || column.Type == Integer):
		column.Length = int(d.Decimals)*256 + int(d.Length)
		column.Decimals = 0
	case column.Type == Character && d.Decimals > 0:
		// Character fields carry no decimal count, a non-zero byte is the
		// high byte of a length above 255.
		column.Length = int(d.Decimals)*256 + int(d.Length)
		column.Decimals = 0
	}
	debugf("Found column %s of type %s, length %d, decimals %d", column.Name, column.Type, column.Length, column.Decimals)
	return column
}

func (c *Column) toDescriptor() *descriptor {
	d := &descriptor{
		DataType: byte(c.Type),
		Length:   uint8(c.Length),
		Decimals: uint8(c.Decimals),
	}
	copy(d.FieldName[:], c.diskName())
	if c.Length > 255 {
		d.Length = uint8(c.Length & 0xFF)
		d.Decimals = uint8(c.Length >> 8)
	}
	if c.Indexed {
		d.Indexed = 1
	}
	return d
}

// writeHeader emits the full header block: the fixed header, one descriptor
// per column and the ColumnEnd marker.
func writeHeader(handle io.WriteSeeker, header *Header, columns []*Column) error {
	if _, err := handle.Seek(0, io.SeekStart); err != nil {
		return newError("tdbf-header-writeheader-1", err)
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return newError("tdbf-header-writeheader-2", err)
	}
	for _, column := range columns {
		if err := binary.Write(buf, binary.LittleEndian, column.toDescriptor()); err != nil {
			return newError("tdbf-header-writeheader-3", err)
		}
	}
	buf.WriteByte(byte(ColumnEnd))
	if _, err := handle.Write(buf.Bytes()); err != nil {
		return newError("tdbf-header-writeheader-4", err)
	}
	return nil
}
