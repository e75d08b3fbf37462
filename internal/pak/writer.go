package pak

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// Source is a file to be appended to an archive.
type Source struct {
	Name string // name stored in the index, forward-slash relative path
	Path string // where the payload is read from
}

// Write creates (or truncates) the archive at dst and fills it with srcs in
// the given order. Payloads are streamed from their current location.
//
// All names are validated before dst is touched, and dst is removed again
// if writing fails, so no partial archive is left behind.
func Write(fsys afero.Fs, dst string, srcs []Source) (entries []Entry, err error) {
	for _, s := range srcs {
		if err := ValidateName(s.Name); err != nil {
			return nil, err
		}
	}
	if int64(len(srcs))*EntrySize > math.MaxInt32 {
		return nil, fmt.Errorf("%d entries: %w", len(srcs), ErrArchiveTooLarge)
	}

	f, err := fsys.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close archive: %w", closeErr)
		}
		if err != nil {
			fsys.Remove(dst)
		}
	}()

	w := bufio.NewWriter(f)

	// placeholder, rewritten once the index position is known
	if err := binary.Write(w, binary.LittleEndian, &Header{Magic: Magic}); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	entries = make([]Entry, 0, len(srcs))
	offset := int64(HeaderSize)
	for _, s := range srcs {
		n, err := appendPayload(fsys, w, s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to append %s: %w", s.Name, err)
		}
		if offset+n > math.MaxInt32 {
			return nil, fmt.Errorf("appending %s: %w", s.Name, ErrArchiveTooLarge)
		}
		entries = append(entries, Entry{
			Name:   s.Name,
			Offset: int32(offset),
			Length: int32(n),
		})
		offset += n
	}

	indexSize := int64(len(entries)) * EntrySize
	if offset+indexSize > math.MaxInt32 {
		return nil, fmt.Errorf("writing index: %w", ErrArchiveTooLarge)
	}

	for _, e := range entries {
		if err := binary.Write(w, binary.LittleEndian, e.record()); err != nil {
			return nil, fmt.Errorf("failed to write index entry %s: %w", e.Name, err)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush archive: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to header: %w", err)
	}
	h := Header{
		Magic:       Magic,
		IndexOffset: int32(offset),
		IndexSize:   int32(indexSize),
	}
	if err := binary.Write(f, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to rewrite header: %w", err)
	}

	return entries, nil
}

// WriteDir packs every regular file below srcDir into the archive at dst.
// Files are stored under their forward-slash path relative to srcDir, in
// lexicographic order of that path so offsets are reproducible.
func WriteDir(fsys afero.Fs, srcDir, dst string) ([]Entry, error) {
	var srcs []Source
	err := afero.Walk(fsys, srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		srcs = append(srcs, Source{Name: filepath.ToSlash(rel), Path: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", srcDir, err)
	}

	slices.SortFunc(srcs, func(a, b Source) int {
		return strings.Compare(a.Name, b.Name)
	})

	return Write(fsys, dst, srcs)
}

func appendPayload(fsys afero.Fs, w io.Writer, path string) (int64, error) {
	src, err := fsys.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	return io.Copy(w, src)
}

func (e Entry) record() *record {
	r := &record{Offset: e.Offset, Length: e.Length}
	copy(r.Name[:], e.Name)
	return r
}
