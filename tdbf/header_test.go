package tdbf

import (
	"os"
	"path/filepath"
	"testing"
)

func tempFile(t *testing.T, name string) *os.File {
	t.Helper()
	handle, err := os.Create(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("creating temp file failed: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	return handle
}

func TestHeader_RoundTrip(t *testing.T) {
	handle := tempFile(t, "header.dbf")
	header := &Header{
		Version:        0x32,
		RecordsCount:   7,
		HeaderSize:     97,
		RecordSize:     24,
		LanguageDriver: 0xC8,
	}
	if err := header.setModified("20260806"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	columns := []*Column{
		{Name: "ID", Type: Numeric, Length: 5},
		{Name: "NAME", Type: Character, Length: 10, Indexed: true},
	}
	if err := writeHeader(handle, header, columns); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	read, err := readHeader(handle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if read == nil {
		t.Fatal("expected a header, got nil")
	}
	if *read != *header {
		t.Errorf("header round trip mismatch:\n%+v\n%+v", header, read)
	}
	readCols, err := readColumns(handle, dialectFor(0x32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readCols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(readCols))
	}
	for i, column := range columns {
		if *readCols[i] != *column {
			t.Errorf("column %d mismatch: %+v != %+v", i, readCols[i], column)
		}
	}
}

func TestHeader_ModifiedDate(t *testing.T) {
	header := &Header{}
	if err := header.setModified("19851231"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header.Year != 85 || header.Month != 12 || header.Day != 31 {
		t.Errorf("expected 85-12-31, got %d-%d-%d", header.Year, header.Month, header.Day)
	}
	modified := header.Modified()
	if modified.Year() != 1985 || modified.Month() != 12 || modified.Day() != 31 {
		t.Errorf("unexpected modified date %v", modified)
	}
}

func TestReadHeader_Short(t *testing.T) {
	handle := tempFile(t, "short.dbf")
	if _, err := handle.Write([]byte{0x03, 0x01}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	header, err := readHeader(handle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != nil {
		t.Errorf("expected nil header for a short file, got %+v", header)
	}
}

func TestReadColumns_DecimalAsLengthHigh(t *testing.T) {
	handle := tempFile(t, "extended.dbf")
	header := &Header{Version: 0x31, HeaderSize: 65, RecordSize: 261}
	columns := []*Column{{Name: "BIG", Type: Numeric, Length: 260}}
	if err := writeHeader(handle, header, columns); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The 0x31 dialect folds the decimal byte into the length.
	readCols, err := readColumns(handle, dialectFor(0x31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if readCols[0].Length != 260 || readCols[0].Decimals != 0 {
		t.Errorf("expected length 260, got length %d decimals %d", readCols[0].Length, readCols[0].Decimals)
	}
	// The same descriptor bytes under 0x32 are taken literally.
	readCols, err = readColumns(handle, dialectFor(0x32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if readCols[0].Length != 4 || readCols[0].Decimals != 1 {
		t.Errorf("expected length 4 decimals 1, got length %d decimals %d", readCols[0].Length, readCols[0].Decimals)
	}
}

func TestDescriptor_ExtendedCharacterLength(t *testing.T) {
	column := &Column{Name: "WIDE", Type: Character, Length: 300}
	d := column.toDescriptor()
	if d.Length != 44 || d.Decimals != 1 {
		t.Errorf("expected split 1*256+44, got length %d decimals %d", d.Length, d.Decimals)
	}
	back := d.toColumn(dialectFor(0x32))
	if back.Length != 300 || back.Decimals != 0 {
		t.Errorf("expected length 300, got length %d decimals %d", back.Length, back.Decimals)
	}
}

func TestDescriptor_NameTruncation(t *testing.T) {
	column := &Column{Name: "AVERYLONGNAME", Type: Character, Length: 5}
	back := column.toDescriptor().toColumn(dialectFor(0x32))
	if back.Name != "AVERYLONGN" {
		t.Errorf("expected truncated name AVERYLONGN, got %s", back.Name)
	}
}
