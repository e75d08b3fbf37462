package pak

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// ErrEntryNotFound is returned by Archive.ReadEntry for unknown names.
var ErrEntryNotFound = errors.New("entry not found")

// Reader reads information from PACK files.
type Reader struct {
	file   io.ReadSeeker
	logger *slog.Logger
	header *Header
}

// NewReader returns a Reader over rs. A nil logger discards output.
func NewReader(rs io.ReadSeeker, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{file: rs, logger: logger}
}

// ReadHeader reads the 12-byte header from the start of the file.
// It will raise an error if the first 4 bytes read are not magic
// (pak.Magic) or the index location is impossible.
func (r *Reader) ReadHeader() (*Header, error) {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to header: %w", err)
	}

	h := &Header{}

	if _, err := io.ReadFull(r.file, h.Magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("invalid PACK magic: expected %q, got %q",
			Magic, h.Magic)
	}

	if err := binary.Read(r.file, binary.LittleEndian, &h.IndexOffset); err != nil {
		return nil, fmt.Errorf("failed to read index offset: %w", err)
	}

	if err := binary.Read(r.file, binary.LittleEndian, &h.IndexSize); err != nil {
		return nil, fmt.Errorf("failed to read index size: %w", err)
	}

	if h.IndexOffset < HeaderSize {
		return nil, fmt.Errorf("invalid IndexOffset: %d", h.IndexOffset)
	}
	if h.IndexSize < 0 || h.IndexSize%EntrySize != 0 {
		return nil, fmt.Errorf("invalid IndexSize: %d", h.IndexSize)
	}

	r.logger.Debug("header is valid",
		"magic", string(h.Magic[:]),
		"index_offset", h.IndexOffset,
		"index_size", h.IndexSize,
	)

	r.header = h
	return h, nil
}

// ReadIndex reads every index record. ReadHeader must have been called.
func (r *Reader) ReadIndex() ([]Entry, error) {
	if r.header == nil {
		return nil, errors.New("header has not been read")
	}

	if _, err := r.file.Seek(int64(r.header.IndexOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to index at offset %d: %w", r.header.IndexOffset, err)
	}

	count := r.header.EntryCount()
	entries := make([]Entry, 0, count)

	for i := 0; i < count; i++ {
		var rec record
		if err := binary.Read(r.file, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("failed to read entry %d: %w", i, err)
		}

		e := Entry{
			Name:   trimName(rec.Name[:]),
			Offset: rec.Offset,
			Length: rec.Length,
		}
		if e.Offset < HeaderSize || e.Length < 0 || int64(e.Offset)+int64(e.Length) > int64(r.header.IndexOffset) {
			return nil, fmt.Errorf("entry %d (%s) out of bounds: offset %d, length %d",
				i, e.Name, e.Offset, e.Length)
		}

		entries = append(entries, e)

		r.logger.Debug("read index entry",
			"index", i,
			"name", e.Name,
			"offset", e.Offset,
			"length", e.Length,
		)
	}

	return entries, nil
}

// ReadPayload returns the bytes of e.
func (r *Reader) ReadPayload(e Entry) ([]byte, error) {
	if _, err := r.file.Seek(int64(e.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to %s at offset %d: %w", e.Name, e.Offset, err)
	}
	buf := make([]byte, e.Length)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.Name, err)
	}
	return buf, nil
}

// Archive is an opened PACK file with its index loaded.
type Archive struct {
	Header  Header
	Entries []Entry
	Size    int64

	file   afero.File
	reader *Reader
}

// Open opens the archive at path and loads its header and index.
func Open(fsys afero.Fs, path string, logger *slog.Logger) (*Archive, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	a, err := load(f, logger)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func load(f afero.File, logger *slog.Logger) (*Archive, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	r := NewReader(f, logger)
	h, err := r.ReadHeader()
	if err != nil {
		return nil, err
	}
	entries, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}

	return &Archive{
		Header:  *h,
		Entries: entries,
		Size:    info.Size(),
		file:    f,
		reader:  r,
	}, nil
}

// Close closes the underlying file.
func (a *Archive) Close() error {
	return a.file.Close()
}

// Names returns the entry names in index order.
func (a *Archive) Names() []string {
	return lo.Map(a.Entries, func(e Entry, _ int) string { return e.Name })
}

// ReadEntry returns the contents of the entry called name.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	e, ok := lo.Find(a.Entries, func(e Entry) bool { return e.Name == name })
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
	}
	return a.reader.ReadPayload(e)
}

// Verify checks the layout written by Write: payloads are contiguous from the
// end of the header, the index starts right after the last payload and ends
// at the end of the file.
func (a *Archive) Verify() error {
	next := int64(HeaderSize)
	for _, e := range a.Entries {
		if int64(e.Offset) != next {
			return fmt.Errorf("entry %s starts at %d, expected %d", e.Name, e.Offset, next)
		}
		next += int64(e.Length)
	}
	if int64(a.Header.IndexOffset) != next {
		return fmt.Errorf("index starts at %d, payload ends at %d", a.Header.IndexOffset, next)
	}
	if end := int64(a.Header.IndexOffset) + int64(a.Header.IndexSize); end != a.Size {
		return fmt.Errorf("index ends at %d, file size is %d", end, a.Size)
	}
	return nil
}

// PayloadSize returns the sum of all entry lengths.
func (a *Archive) PayloadSize() int64 {
	return lo.SumBy(a.Entries, func(e Entry) int64 { return int64(e.Length) })
}

func trimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
