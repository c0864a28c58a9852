package tdbf

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sort"
)

// memoStore owns the DBT sidecar: the next-available-block counter, the
// write buffer of the running insert or update and the rollback anchor.
// Buffered values are only flushed after the record bytes hit the main
// file, so a failed record write can roll the allocation back without
// touching the sidecar.
type memoStore struct {
	handle        *os.File
	path          string
	nextAvailable uint32
	buffer        map[uint32][]byte
	anchor        uint32
	hasAnchor     bool
	readOnly      bool
	// The value terminator is a single 0x1A instead of 0x1A 0x1A.
	singleTerminator bool
}

// openMemo opens an existing DBT file and reads its next-available-block
// counter from the first four bytes.
func openMemo(path string, dialect Dialect) (*memoStore, error) {
	readOnly := false
	handle, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		handle, err = os.OpenFile(path, os.O_RDONLY, 0644)
		if err != nil {
			return nil, newError("tdbf-memo-open-1", err)
		}
		readOnly = true
	}
	m := &memoStore{
		handle:           handle,
		path:             path,
		nextAvailable:    1,
		buffer:           make(map[uint32][]byte),
		readOnly:         readOnly,
		singleTerminator: dialect.SingleByteTerminator,
	}
	b := make([]byte, 4)
	n, err := handle.ReadAt(b, 0)
	if err != nil && err != io.EOF {
		handle.Close()
		return nil, newError("tdbf-memo-open-2", err)
	}
	if n == 4 {
		m.nextAvailable = binary.LittleEndian.Uint32(b)
	}
	debugf("Opened memo file %s, next available block %d", path, m.nextAvailable)
	return m, nil
}

// createMemo creates a fresh DBT file whose first block holds the counter
// pointing at block one.
func createMemo(path string, dialect Dialect) (*memoStore, error) {
	handle, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, newError("tdbf-memo-create-1", err)
	}
	block := make([]byte, memoBlockSize)
	block[0] = 0x01
	if _, err := handle.Write(block); err != nil {
		handle.Close()
		return nil, newError("tdbf-memo-create-2", err)
	}
	debugf("Created memo file %s", path)
	return &memoStore{
		handle:           handle,
		path:             path,
		nextAvailable:    1,
		buffer:           make(map[uint32][]byte),
		singleTerminator: dialect.SingleByteTerminator,
	}, nil
}

func (m *memoStore) terminator() []byte {
	if m.singleTerminator {
		return []byte{byte(EOFMarker)}
	}
	return []byte{byte(EOFMarker), byte(EOFMarker)}
}

// write buffers a memo value and allocates its blocks. The classic two
// byte terminator is always appended on write, the single byte form only
// matters for reading.
func (m *memoStore) write(value []byte) uint32 {
	data := make([]byte, 0, len(value)+2)
	data = append(data, value...)
	data = append(data, byte(EOFMarker), byte(EOFMarker))
	blocks := uint32(len(data) / memoBlockSize)
	if len(data)%memoBlockSize > 0 {
		blocks++
	}
	if !m.hasAnchor {
		m.anchor = m.nextAvailable
		m.hasAnchor = true
	}
	pointer := m.nextAvailable
	m.buffer[pointer] = data
	m.nextAvailable += blocks
	debugf("Buffered memo value of %d bytes at block %d (%d blocks)", len(value), pointer, blocks)
	return pointer
}

// read returns the memo value starting at the given block, up to and
// excluding the terminator.
func (m *memoStore) read(pointer uint32) ([]byte, error) {
	if m.handle == nil {
		return nil, nil
	}
	if _, err := m.handle.Seek(int64(pointer)*memoBlockSize, io.SeekStart); err != nil {
		return nil, newError("tdbf-memo-read-1", err)
	}
	terminator := m.terminator()
	value := make([]byte, 0, memoBlockSize)
	block := make([]byte, memoBlockSize)
	for {
		n, err := m.handle.Read(block)
		if n > 0 {
			// The terminator may straddle a block boundary, rescan from
			// one byte before the previous end.
			from := len(value) - len(terminator) + 1
			if from < 0 {
				from = 0
			}
			value = append(value, block[:n]...)
			if i := bytes.Index(value[from:], terminator); i >= 0 {
				return value[:from+i], nil
			}
		}
		if err == io.EOF {
			return value, nil
		}
		if err != nil {
			return nil, newError("tdbf-memo-read-2", err)
		}
	}
}

// flush writes the buffered values in ascending block order, padding the
// file with zero bytes where a pointer lies past the current end.
func (m *memoStore) flush() error {
	if m.handle == nil {
		return nil
	}
	if len(m.buffer) == 0 {
		return nil
	}
	pointers := make([]uint32, 0, len(m.buffer))
	for pointer := range m.buffer {
		pointers = append(pointers, pointer)
	}
	sort.Slice(pointers, func(i, j int) bool { return pointers[i] < pointers[j] })
	for _, pointer := range pointers {
		offset := int64(pointer) * memoBlockSize
		size, err := m.handle.Seek(0, io.SeekEnd)
		if err != nil {
			return newError("tdbf-memo-flush-1", err)
		}
		if size < offset {
			if _, err := m.handle.Write(make([]byte, offset-size)); err != nil {
				return newError("tdbf-memo-flush-2", err)
			}
		}
		if _, err := m.handle.Seek(offset, io.SeekStart); err != nil {
			return newError("tdbf-memo-flush-3", err)
		}
		if _, err := m.handle.Write(m.buffer[pointer]); err != nil {
			return newError("tdbf-memo-flush-4", err)
		}
		debugf("Flushed memo block %d (%d bytes)", pointer, len(m.buffer[pointer]))
	}
	if err := m.handle.Sync(); err != nil {
		return newError("tdbf-memo-flush-5", err)
	}
	m.buffer = make(map[uint32][]byte)
	m.hasAnchor = false
	return nil
}

// rollback drops the buffered values and restores the next-available-block
// counter to its value before the first buffered write. Nothing touches
// the file, buffered values were never flushed.
func (m *memoStore) rollback() {
	if m.hasAnchor {
		debugf("Rolling back memo buffer, next available block %d -> %d", m.nextAvailable, m.anchor)
		m.nextAvailable = m.anchor
		m.hasAnchor = false
	}
	m.buffer = make(map[uint32][]byte)
}

// close persists the next-available-block counter into the first four
// bytes and closes the handle.
func (m *memoStore) close() error {
	if m.handle == nil {
		return nil
	}
	if m.readOnly {
		err := m.handle.Close()
		m.handle = nil
		return err
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, m.nextAvailable)
	if _, err := m.handle.WriteAt(b, 0); err != nil {
		m.handle.Close()
		return newError("tdbf-memo-close-1", err)
	}
	err := m.handle.Close()
	m.handle = nil
	if err != nil {
		return newError("tdbf-memo-close-2", err)
	}
	return nil
}
