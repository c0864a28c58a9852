package tdbf

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Table is an open DBF table. It exclusively owns the main file handle,
// the column list, the compiled record layout and the memo store from
// Open/Create until Close.
type Table struct {
	config  *Config
	handle  *os.File
	path    string
	header  *Header
	dialect Dialect
	columns []*Column
	layout  *layout
	memo    *memoStore
	convert EncodingConverter
	handler Handler

	headerFlushed   bool // a header block exists on disk
	recordsModified bool
	fieldsModified  bool
	written         bool // data was written, the EOF marker is due at close
	fresh           bool // created by this process or opened without a header
	position        int  // current record ordinal, tombstones included
	closed          bool
}

// OpenTable opens a DBF file for reading and writing. A file that does not
// exist yet is created as an empty table. The companion DBT file is opened
// when present; a dialect that expects one but has none raises the
// DBT_DOESNT_EXIST condition and the table opens without memo support.
func OpenTable(config *Config) (*Table, error) {
	if config == nil || len(strings.TrimSpace(config.Filename)) == 0 {
		return nil, newErrorf("tdbf-table-open-1", "missing filename")
	}
	if _, err := os.Stat(config.Filename); os.IsNotExist(err) {
		debugf("File %s does not exist, creating empty table", config.Filename)
		return CreateTable(config)
	}
	handle, err := openFile(config.Filename, os.O_RDWR, 0644)
	if err != nil {
		return nil, newError("tdbf-table-open-2", err)
	}
	t := &Table{
		config:   config,
		handle:   handle,
		path:     config.Filename,
		handler:  config.handler(),
		convert:  config.Converter,
		position: 0,
	}
	header, err := readHeader(handle)
	if err != nil {
		handle.Close()
		return nil, newError("tdbf-table-open-3", err)
	}
	if header == nil {
		// Short header, empty table. The file is treated like a fresh one.
		t.header = &Header{Version: defaultVersion}
		t.dialect = dialectFor(defaultVersion)
		t.columns = make([]*Column, 0)
		t.layout = compileLayout(t.columns, t.dialect)
		t.fresh = true
		return t, nil
	}
	t.header = header
	t.headerFlushed = true
	t.dialect = dialectFor(header.Version)
	debugf("Opened %s: version 0x%02x (%s), %d records", config.Filename, header.Version, t.dialect.Name, header.RecordsCount)
	if t.convert == nil {
		t.convert = ConverterFromCode(header.LanguageDriver)
	}
	t.columns, err = readColumns(handle, t.dialect)
	if err != nil {
		handle.Close()
		return nil, newError("tdbf-table-open-4", err)
	}
	t.layout = compileLayout(t.columns, t.dialect)
	memoPath := t.memoPath()
	if _, err := os.Stat(memoPath); err == nil {
		memo, err := openMemo(memoPath, t.dialect)
		if err != nil {
			handle.Close()
			return nil, newError("tdbf-table-open-5", err)
		}
		t.memo = memo
	} else if t.dialect.MemoExpected {
		t.handler(DBTDoesntExist, t.path)
	}
	return t, nil
}

// CreateTable creates a new empty table, truncating any previous file. The
// header is not written until the first insert or close.
func CreateTable(config *Config) (*Table, error) {
	if config == nil || len(strings.TrimSpace(config.Filename)) == 0 {
		return nil, newErrorf("tdbf-table-create-1", "missing filename")
	}
	handle, err := openFile(config.Filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, newError("tdbf-table-create-2", err)
	}
	header := &Header{Version: defaultVersion}
	if config.Converter != nil {
		header.LanguageDriver = config.Converter.Code()
	}
	debugf("Created table %s", config.Filename)
	return &Table{
		config:  config,
		handle:  handle,
		path:    config.Filename,
		header:  header,
		dialect: dialectFor(defaultVersion),
		columns: make([]*Column, 0),
		layout:  compileLayout(nil, dialectFor(defaultVersion)),
		convert: config.Converter,
		handler: config.handler(),
		fresh:   true,
	}, nil
}

// memoPath derives the DBT sidecar path, matching the case of the table
// file extension.
func (t *Table) memoPath() string {
	ext := filepath.Ext(t.path)
	sidecar := ".dbt"
	if ext != "" && ext == strings.ToUpper(ext) {
		sidecar = ".DBT"
	}
	return strings.TrimSuffix(t.path, ext) + sidecar
}

// Header returns the table header for inspection.
func (t *Table) Header() *Header {
	return t.header
}

// Dialect returns the dialect selected by the version byte.
func (t *Table) Dialect() Dialect {
	return t.dialect
}

// Columns returns the column list.
func (t *Table) Columns() []*Column {
	return t.columns
}

// ColumnNames returns the names of all columns in declaration order.
func (t *Table) ColumnNames() []string {
	return columnNames(t.columns)
}

// AddColumn appends a column. The optional args are length and decimal
// count, consulted where the type does not fix them. Appending is only
// possible while the table holds no records; later calls raise the
// RECORDS_EXIST condition and are skipped.
func (t *Table) AddColumn(name string, dataType DataType, args ...int) error {
	if t.header.RecordsCount > 0 {
		t.handler(RecordsExist, name)
		return nil
	}
	if findColumn(t.columns, name) >= 0 {
		t.handler(ColumnExists, name)
		return nil
	}
	if len(name) > 10 {
		t.handler(ColumnNameTooLong, name)
	}
	column, err := newColumn(name, dataType, args...)
	if err != nil {
		return err
	}
	t.columns = append(t.columns, column)
	t.layout = compileLayout(t.columns, t.dialect)
	t.fieldsModified = true
	if t.headerFlushed {
		// Record addressing must see the new descriptor block size right
		// away, the block itself is rewritten at close.
		t.header.HeaderSize = uint16(headerSize + descriptorSize*len(t.columns) + 1)
		t.header.RecordSize = uint16(t.layout.recordSize)
	}
	debugf("Added column %s of type %s, length %d, decimals %d", column.Name, column.Type, column.Length, column.Decimals)
	return nil
}

// dataOffset is the byte address of record zero.
func (t *Table) dataOffset() int64 {
	if t.header.HeaderSize != 0 {
		return int64(t.header.HeaderSize)
	}
	return int64(headerSize + descriptorSize*len(t.columns) + 1)
}

// recordSize is the on-disk record width including the deletion marker.
func (t *Table) recordSize() int {
	if t.header.RecordSize != 0 {
		return int(t.header.RecordSize)
	}
	return t.layout.recordSize
}

func (t *Table) recordAddress(position int) int64 {
	return t.dataOffset() + int64(position)*int64(t.recordSize())
}

// readMarker reads the deletion byte of a record. ok is false on a short
// read or when the byte is no deletion marker at all, both mean the
// position lies past the physical end of the data. The header count can
// legitimately outrun the physical records after tombstone reuse, in which
// case the scan runs into the trailing EOF byte.
func (t *Table) readMarker(position int) (Marker, bool) {
	b := make([]byte, 1)
	n, err := t.handle.ReadAt(b, t.recordAddress(position))
	if err != nil || n != 1 {
		return 0, false
	}
	marker := Marker(b[0])
	if marker != Active && marker != Deleted {
		return marker, false
	}
	return marker, true
}

// flushInitialHeader computes the derived header fields and writes the
// header block followed by the descriptors.
func (t *Table) flushInitialHeader() error {
	t.header.HeaderSize = uint16(headerSize + descriptorSize*len(t.columns) + 1)
	t.header.RecordSize = uint16(t.layout.recordSize)
	if err := t.header.setModified(formatDate(time.Now())); err != nil {
		return newError("tdbf-table-flushinitialheader-1", err)
	}
	if err := writeHeader(t.handle, t.header, t.columns); err != nil {
		return newError("tdbf-table-flushinitialheader-2", err)
	}
	t.headerFlushed = true
	t.written = true
	debugf("Flushed initial header: %d columns, record size %d", len(t.columns), t.header.RecordSize)
	return nil
}

// serializeRecord renders the full record, deletion marker included. Memo
// values are buffered, not yet flushed.
func (t *Table) serializeRecord(values []interface{}) ([]byte, error) {
	buf := make([]byte, t.layout.recordSize)
	buf[0] = byte(Active)
	for i := range t.layout.slots {
		s := &t.layout.slots[i]
		raw, err := t.writeField(s, values[i])
		if err != nil {
			return nil, err
		}
		copy(buf[s.offset:s.offset+s.width], raw)
	}
	return buf, nil
}

// writeMemoValue buffers a memo body, creating the DBT sidecar on first
// use. A sidecar that can not be created or written raises DBT_READ_ONLY
// and leaves the pointer slot blank.
func (t *Table) writeMemoValue(body []byte) (uint32, bool) {
	if t.memo == nil {
		memo, err := createMemo(t.memoPath(), t.dialect)
		if err != nil {
			t.handler(DBTReadOnly, t.memoPath())
			return 0, false
		}
		t.memo = memo
	}
	if t.memo.readOnly {
		t.handler(DBTReadOnly, t.memo.path)
		return 0, false
	}
	return t.memo.write(body), true
}

func (t *Table) rollbackMemo() {
	if t.memo != nil {
		t.memo.rollback()
	}
}

func (t *Table) flushMemo() error {
	if t.memo == nil {
		return nil
	}
	return t.memo.flush()
}

// Insert appends a record, reusing the earliest tombstone slot when one
// exists. The record count always grows by one.
func (t *Table) Insert(values ...interface{}) error {
	if len(values) != len(t.columns) {
		return newErrorf("tdbf-table-insert-1", "expected %d values, got %d", len(t.columns), len(values))
	}
	if !t.headerFlushed {
		if err := t.flushInitialHeader(); err != nil {
			return newError("tdbf-table-insert-2", err)
		}
	}
	// Earliest tombstone wins; a short read marks the physical end of the
	// data and doubles as the append position.
	position := int(t.header.RecordsCount)
	for i := 0; i < int(t.header.RecordsCount); i++ {
		marker, ok := t.readMarker(i)
		if !ok || marker == Deleted {
			position = i
			break
		}
	}
	buf, err := t.serializeRecord(values)
	if err != nil {
		t.rollbackMemo()
		return newError("tdbf-table-insert-3", err)
	}
	if _, err := t.handle.WriteAt(buf, t.recordAddress(position)); err != nil {
		t.rollbackMemo()
		return newError("tdbf-table-insert-4", err)
	}
	if err := t.handle.Sync(); err != nil {
		return newError("tdbf-table-insert-5", err)
	}
	if err := t.flushMemo(); err != nil {
		return newError("tdbf-table-insert-6", err)
	}
	t.header.RecordsCount++
	t.recordsModified = true
	t.written = true
	debugf("Inserted record at position %d, %d records total", position, t.header.RecordsCount)
	return nil
}

// liveRecords enumerates the positions of all non-tombstoned records.
func (t *Table) liveRecords() []int {
	live := make([]int, 0, t.header.RecordsCount)
	for i := 0; i < int(t.header.RecordsCount); i++ {
		marker, ok := t.readMarker(i)
		if !ok {
			break
		}
		if marker != Deleted {
			live = append(live, i)
		}
	}
	return live
}

// Seek positions the table at the index-th live record. It returns false
// when the table has no live records or the index is out of range.
func (t *Table) Seek(index int) bool {
	live := t.liveRecords()
	if index < 0 || index >= len(live) {
		return false
	}
	t.position = live[index]
	return true
}

// Tell returns the zero-based ordinal of the current position within the
// live record sequence. ok is false when the position does not sit on a
// live record.
func (t *Table) Tell() (int, bool) {
	for ordinal, position := range t.liveRecords() {
		if position == t.position {
			return ordinal, true
		}
	}
	return 0, false
}

// readRecordAt reads and decodes the record at a physical position. A
// short read returns nil values.
func (t *Table) readRecordAt(position int) ([]interface{}, error) {
	size := t.recordSize()
	buf := make([]byte, size)
	n, err := t.handle.ReadAt(buf, t.recordAddress(position))
	if n < size {
		if err != nil && err != io.EOF {
			debugf("Short record read at position %d: %v", position, err)
		}
		return nil, nil
	}
	values := make([]interface{}, len(t.layout.slots))
	for i := range t.layout.slots {
		s := &t.layout.slots[i]
		value, err := t.readField(s, buf[s.offset:s.offset+s.width])
		if err != nil {
			return nil, newError("tdbf-table-readrecordat-1", err)
		}
		values[i] = value
	}
	return values, nil
}

// Gets reads the record at the current position and advances past any
// trailing tombstones, so that the next call returns the next live record.
// At end of file it returns nil values and false.
func (t *Table) Gets() ([]interface{}, bool, error) {
	for t.position < int(t.header.RecordsCount) {
		marker, ok := t.readMarker(t.position)
		if !ok {
			return nil, false, nil
		}
		if marker != Deleted {
			break
		}
		t.position++
	}
	if t.position >= int(t.header.RecordsCount) {
		return nil, false, nil
	}
	values, err := t.readRecordAt(t.position)
	if err != nil {
		return nil, false, newError("tdbf-table-gets-1", err)
	}
	if values == nil {
		return nil, false, nil
	}
	t.position++
	for t.position < int(t.header.RecordsCount) {
		marker, ok := t.readMarker(t.position)
		if !ok || marker != Deleted {
			break
		}
		t.position++
	}
	return values, true, nil
}

// ForEach visits every live record in order, presenting it as a map keyed
// by column name. Returning an error from the body aborts the iteration.
func (t *Table) ForEach(body func(record map[string]interface{}) error) error {
	for i := 0; i < int(t.header.RecordsCount); i++ {
		marker, ok := t.readMarker(i)
		if !ok {
			break
		}
		if marker == Deleted {
			continue
		}
		values, err := t.readRecordAt(i)
		if err != nil {
			return newError("tdbf-table-foreach-1", err)
		}
		if values == nil {
			break
		}
		record := make(map[string]interface{}, len(t.columns))
		for c, column := range t.columns {
			record[column.Name] = values[c]
		}
		if err := body(record); err != nil {
			return err
		}
	}
	return nil
}

// GetAllData returns all live records in order, each as a value slice in
// column order.
func (t *Table) GetAllData() ([][]interface{}, error) {
	data := make([][]interface{}, 0, t.header.RecordsCount)
	for _, position := range t.liveRecords() {
		values, err := t.readRecordAt(position)
		if err != nil {
			return nil, newError("tdbf-table-getalldata-1", err)
		}
		if values == nil {
			break
		}
		data = append(data, values)
	}
	return data, nil
}

// GetDataCount returns the number of live records.
func (t *Table) GetDataCount() int {
	return len(t.liveRecords())
}

// Update rewrites the index-th live record with the given values. It
// returns false when the table has no records or the index is not found.
// A serialization failure rolls the memo buffer back before returning.
func (t *Table) Update(index int, values ...interface{}) (bool, error) {
	if t.header.RecordsCount == 0 {
		t.handler(NoRecordsWhileUpdating, index)
		return false, nil
	}
	if len(values) != len(t.columns) {
		return false, newErrorf("tdbf-table-update-1", "expected %d values, got %d", len(t.columns), len(values))
	}
	if !t.Seek(index) {
		return false, nil
	}
	buf, err := t.serializeRecord(values)
	if err != nil {
		t.rollbackMemo()
		return false, newError("tdbf-table-update-2", err)
	}
	// The record is known live, the deletion marker is left untouched.
	if _, err := t.handle.WriteAt(buf[1:], t.recordAddress(t.position)+1); err != nil {
		t.rollbackMemo()
		return false, newError("tdbf-table-update-3", err)
	}
	if err := t.handle.Sync(); err != nil {
		return false, newError("tdbf-table-update-4", err)
	}
	if err := t.flushMemo(); err != nil {
		return false, newError("tdbf-table-update-5", err)
	}
	t.recordsModified = true
	t.written = true
	return true, nil
}

// UpdateField rewrites a single field of the index-th live record, leaving
// every other field untouched. The column offset was fixed at layout
// compile time, so only the field bytes are written.
func (t *Table) UpdateField(index int, columnName string, value interface{}) (bool, error) {
	s := t.layout.slotByName(columnName)
	if s == nil {
		return false, newErrorf("tdbf-table-updatefield-1", "column %s not found", columnName)
	}
	if t.header.RecordsCount == 0 {
		t.handler(NoRecordsWhileUpdating, index)
		return false, nil
	}
	if !t.Seek(index) {
		return false, nil
	}
	raw, err := t.writeField(s, value)
	if err != nil {
		t.rollbackMemo()
		return false, newError("tdbf-table-updatefield-2", err)
	}
	if _, err := t.handle.WriteAt(raw, t.recordAddress(t.position)+int64(s.offset)); err != nil {
		t.rollbackMemo()
		return false, newError("tdbf-table-updatefield-3", err)
	}
	if err := t.handle.Sync(); err != nil {
		return false, newError("tdbf-table-updatefield-4", err)
	}
	if err := t.flushMemo(); err != nil {
		return false, newError("tdbf-table-updatefield-5", err)
	}
	t.recordsModified = true
	t.written = true
	return true, nil
}

// Delete tombstones the index-th live record. The record count is left
// unchanged, tombstones still count.
func (t *Table) Delete(index int) (bool, error) {
	if !t.Seek(index) {
		return false, nil
	}
	if _, err := t.handle.WriteAt([]byte{byte(Deleted)}, t.recordAddress(t.position)); err != nil {
		return false, newError("tdbf-table-delete-1", err)
	}
	if err := t.handle.Sync(); err != nil {
		return false, newError("tdbf-table-delete-2", err)
	}
	t.recordsModified = true
	t.written = true
	debugf("Deleted record at position %d", t.position)
	return true, nil
}

// Close flushes the memo counter, brings the header up to date and appends
// the EOF marker if the file was written to. The table is unusable
// afterwards.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.memo != nil {
		if err := t.memo.close(); err != nil {
			return newError("tdbf-table-close-1", err)
		}
		t.memo = nil
	}
	if t.handle == nil {
		return nil
	}
	switch {
	case !t.headerFlushed:
		if err := t.flushInitialHeader(); err != nil {
			return newError("tdbf-table-close-2", err)
		}
	case t.fieldsModified:
		t.header.HeaderSize = uint16(headerSize + descriptorSize*len(t.columns) + 1)
		t.header.RecordSize = uint16(t.layout.recordSize)
		if err := t.header.setModified(formatDate(time.Now())); err != nil {
			return newError("tdbf-table-close-3", err)
		}
		if err := writeHeader(t.handle, t.header, t.columns); err != nil {
			return newError("tdbf-table-close-4", err)
		}
	case t.recordsModified:
		if err := t.updateHeader(); err != nil {
			return newError("tdbf-table-close-5", err)
		}
	}
	if t.written {
		if err := t.ensureEOFMarker(); err != nil {
			return newError("tdbf-table-close-6", err)
		}
	}
	err := t.handle.Close()
	t.handle = nil
	if err != nil {
		return newError("tdbf-table-close-7", err)
	}
	debugf("Closed table %s", t.path)
	return nil
}

// updateHeader patches the modification date and the record count in
// place, leaving the rest of the header block untouched.
func (t *Table) updateHeader() error {
	if err := t.header.setModified(formatDate(time.Now())); err != nil {
		return newError("tdbf-table-updateheader-1", err)
	}
	b := make([]byte, 7)
	b[0] = t.header.Year
	b[1] = t.header.Month
	b[2] = t.header.Day
	b[3] = byte(t.header.RecordsCount)
	b[4] = byte(t.header.RecordsCount >> 8)
	b[5] = byte(t.header.RecordsCount >> 16)
	b[6] = byte(t.header.RecordsCount >> 24)
	if _, err := t.handle.WriteAt(b, 1); err != nil {
		return newError("tdbf-table-updateheader-2", err)
	}
	return nil
}

// ensureEOFMarker appends the trailing 0x1A byte if the file does not end
// with one.
func (t *Table) ensureEOFMarker() error {
	size, err := t.handle.Seek(0, io.SeekEnd)
	if err != nil {
		return newError("tdbf-table-ensureeofmarker-1", err)
	}
	if size > 0 {
		b := make([]byte, 1)
		if _, err := t.handle.ReadAt(b, size-1); err != nil {
			return newError("tdbf-table-ensureeofmarker-2", err)
		}
		if Marker(b[0]) == EOFMarker {
			return nil
		}
	}
	if _, err := t.handle.Write([]byte{byte(EOFMarker)}); err != nil {
		return newError("tdbf-table-ensureeofmarker-3", err)
	}
	return nil
}
