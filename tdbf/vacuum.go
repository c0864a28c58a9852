package tdbf

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Vacuum rewrites the table into a temporary DBF/DBT pair holding only the
// live records, then overwrites the originals in place. The position is
// reset to record zero. On failure the original files are unchanged and
// the temporaries are removed.
func (t *Table) Vacuum() error {
	dir := filepath.Dir(t.path)
	base := strings.TrimSuffix(filepath.Base(t.path), filepath.Ext(t.path))
	tmpFile, err := os.CreateTemp(dir, base+"-*.dbf")
	if err != nil {
		return newError("tdbf-vacuum-1", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	tmp, err := CreateTable(&Config{
		Filename:  tmpPath,
		Converter: t.convert,
		Handler:   t.handler,
	})
	if err != nil {
		os.Remove(tmpPath)
		return newError("tdbf-vacuum-2", err)
	}
	tmpMemoPath := tmp.memoPath()
	cleanup := func() {
		os.Remove(tmpPath)
		os.Remove(tmpMemoPath)
	}
	// Same version, encoding and column list as the source.
	tmp.header.Version = t.header.Version
	tmp.header.LanguageDriver = t.header.LanguageDriver
	tmp.dialect = t.dialect
	for _, column := range t.columns {
		clone := *column
		tmp.columns = append(tmp.columns, &clone)
	}
	tmp.layout = compileLayout(tmp.columns, tmp.dialect)
	if err := t.copyLiveRecords(tmp); err != nil {
		tmp.Close()
		cleanup()
		return newError("tdbf-vacuum-3", err)
	}
	liveCount := tmp.header.RecordsCount
	memoNext := uint32(1)
	if tmp.memo != nil {
		memoNext = tmp.memo.nextAvailable
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return newError("tdbf-vacuum-4", err)
	}
	if err := overwriteFrom(t.handle, tmpPath); err != nil {
		cleanup()
		return newError("tdbf-vacuum-5", err)
	}
	if t.memo != nil && t.memo.handle != nil {
		if err := overwriteFrom(t.memo.handle, tmpMemoPath); err != nil {
			cleanup()
			return newError("tdbf-vacuum-6", err)
		}
		t.memo.nextAvailable = memoNext
		t.memo.buffer = make(map[uint32][]byte)
		t.memo.hasAnchor = false
	}
	cleanup()
	t.header.RecordsCount = liveCount
	t.headerFlushed = true
	t.recordsModified = false
	t.fieldsModified = false
	t.written = true
	t.position = 0
	debugf("Vacuumed %s, %d live records kept", t.path, liveCount)
	return nil
}

// copyLiveRecords streams every live record of the source into the
// destination table with Gets and Insert, resolving and re-writing memo
// bodies along the way.
func (t *Table) copyLiveRecords(dst *Table) error {
	position := t.position
	defer func() { t.position = position }()
	t.position = 0
	for {
		values, ok, err := t.Gets()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := dst.Insert(values...); err != nil {
			return err
		}
	}
}

// overwriteFrom truncates the destination handle and streams the named
// source file into it.
func overwriteFrom(dst *os.File, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		// The temporary sidecar may not exist when no memo was written.
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()
	if err := dst.Truncate(0); err != nil {
		return err
	}
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}
