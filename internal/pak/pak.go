package pak

import "errors"

// Magic is the magic number identifying PACK archives ("PACK")
var Magic = [4]byte{'P', 'A', 'C', 'K'}

const (
	// HeaderSize is the size of the fixed header: magic, index offset, index size.
	HeaderSize = 12

	// NameSize is the width of the name field of an index record.
	// Names shorter than this are padded with NUL bytes.
	NameSize = 56

	// EntrySize is the size of one index record: name, offset, length.
	EntrySize = NameSize + 4 + 4
)

var (
	// ErrNameTooLong is returned for names that do not fit the index name field.
	ErrNameTooLong = errors.New("name exceeds 56 bytes")

	// ErrNonASCII is returned for names containing bytes outside 7-bit ASCII.
	ErrNonASCII = errors.New("name is not ASCII")

	// ErrArchiveTooLarge is returned when payload offsets overflow int32.
	ErrArchiveTooLarge = errors.New("archive exceeds 2 GiB offset limit")
)

// Header is the header of a PACK file.
type Header struct {
	Magic       [4]byte // "PACK" for valid archives
	IndexOffset int32   // absolute offset of the first index record
	IndexSize   int32   // size of the index in bytes, EntrySize * entry count
}

// EntryCount returns the number of index records described by the header.
func (h *Header) EntryCount() int {
	return int(h.IndexSize) / EntrySize
}

// Entry is one index record of a PACK file.
type Entry struct {
	Name   string // forward-slash relative path
	Offset int32  // absolute offset of the payload
	Length int32  // payload size in bytes
}

// record is the on-disk layout of an Entry.
type record struct {
	Name   [NameSize]byte
	Offset int32
	Length int32
}

// ValidateName reports whether name can be stored in an index record.
// The returned error wraps ErrNonASCII or ErrNameTooLong.
func ValidateName(name string) error {
	for i := 0; i < len(name); i++ {
		if name[i] > 0x7F {
			return &NameError{Name: name, Err: ErrNonASCII}
		}
	}
	if len(name) > NameSize {
		return &NameError{Name: name, Err: ErrNameTooLong}
	}
	return nil
}

// NameError records a name rejected by ValidateName.
type NameError struct {
	Name string
	Err  error
}

func (e *NameError) Error() string { return e.Err.Error() + ": " + e.Name }
func (e *NameError) Unwrap() error { return e.Err }
