// Package snapshot provides the opaque, versioned buffer that snapshot services write
// component state into.
//
// A Store is an owned byte buffer: a four byte magic, one format version byte, then a
// sequence of length-prefixed records. The engine never looks inside a Store; it only
// creates one, hands it to a SnapshotService, and hands it back later for restore.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FormatVersion is the current on-buffer layout version.
const FormatVersion byte = 1

var magic = [4]byte{'R', 'W', 'N', 'D'}

const headerSize = len(magic) + 1

var (
	// ErrBadMagic is returned when a buffer does not start with the store magic.
	ErrBadMagic = errors.New("snapshot: not a store buffer")
	// ErrUnsupportedVersion is returned for buffers written by an unknown format version.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported format version")
	// ErrCorrupt is returned when a record cannot be decoded.
	ErrCorrupt = errors.New("snapshot: corrupt record")
)

// Kind distinguishes whole-component records from single-member records.
type Kind byte

const (
	KindComponent Kind = iota + 1
	KindMember
)

func (k Kind) String() string {
	switch k {
	case KindComponent:
		return "component"
	case KindMember:
		return "member"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Record is one serialize call's output.
// Payload encoding belongs to the snapshot service that wrote it.
type Record struct {
	Kind      Kind
	Component string
	Member    string
	Payload   []byte
}

// Store accumulates records. The zero value is not usable; call New.
type Store struct {
	buf   []byte
	count int
}

// New returns an empty store stamped with FormatVersion.
func New() *Store {
	s := &Store{buf: make([]byte, 0, 64)}
	s.buf = append(s.buf, magic[:]...)
	s.buf = append(s.buf, FormatVersion)
	return s
}

// FromBytes adopts a buffer produced by Bytes.
// The records are validated eagerly so a bad buffer fails here, not at restore time.
func FromBytes(b []byte) (*Store, error) {
	if len(b) < headerSize || !bytes.Equal(b[:len(magic)], magic[:]) {
		return nil, ErrBadMagic
	}
	if v := b[len(magic)]; v != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	s := &Store{buf: append([]byte(nil), b...)}
	recs, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.count = len(recs)
	return s, nil
}

// Append encodes r at the end of the buffer.
func (s *Store) Append(r Record) {
	s.buf = append(s.buf, byte(r.Kind))
	s.buf = appendBytes(s.buf, []byte(r.Component))
	s.buf = appendBytes(s.buf, []byte(r.Member))
	s.buf = appendBytes(s.buf, r.Payload)
	s.count++
}

// Records decodes the records in write order.
func (s *Store) Records() ([]Record, error) {
	return s.decode()
}

// Len returns the number of records.
func (s *Store) Len() int {
	return s.count
}

// Size returns the buffer size in bytes.
func (s *Store) Size() int {
	return len(s.buf)
}

// Version returns the format version stamped on the buffer.
func (s *Store) Version() byte {
	return s.buf[len(magic)]
}

// Bytes returns a copy of the encoded buffer.
func (s *Store) Bytes() []byte {
	return append([]byte(nil), s.buf...)
}

func (s *Store) decode() ([]Record, error) {
	r := bytes.NewReader(s.buf[headerSize:])
	var out []Record
	for r.Len() > 0 {
		k, err := r.ReadByte()
		if err != nil {
			return nil, ErrCorrupt
		}
		comp, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		member, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		kind := Kind(k)
		if kind != KindComponent && kind != KindMember {
			return nil, fmt.Errorf("%w: unknown %s", ErrCorrupt, kind)
		}
		out = append(out, Record{
			Kind:      kind,
			Component: string(comp),
			Member:    string(member),
			Payload:   payload,
		})
	}
	return out, nil
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ErrCorrupt
	}
	if n > uint64(r.Len()) {
		return nil, ErrCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrCorrupt
	}
	return b, nil
}
