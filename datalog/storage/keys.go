package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/wbrown/horus-datalog/datalog"
)

// Key namespaces. Every key starts with one of these bytes followed by
// the 8-byte hash of the relation name.
const (
	TuplePrefix  byte = 't'
	SchemaPrefix byte = 's'
)

var errCorruptKey = errors.New("corrupt tuple key")

// RelationHash is the big-endian xxhash64 of a relation name.
func RelationHash(name string) []byte {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], xxhash.Sum64String(name))
	return h[:]
}

func tuplePrefix(name string) []byte {
	return concatBytes([]byte{TuplePrefix}, RelationHash(name))
}

func schemaKey(name string) []byte {
	return concatBytes([]byte{SchemaPrefix}, RelationHash(name))
}

// concatBytes efficiently concatenates byte slices
func concatBytes(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}

	result := make([]byte, size)
	offset := 0
	for _, p := range parts {
		copy(result[offset:], p)
		offset += len(p)
	}

	return result
}

// appendTuple appends the key encoding of t to dst. Numbers are 8 bytes
// big-endian with the sign bit flipped so that byte order matches
// numeric order. Symbols are written as their text, uvarint
// length-prefixed, since symbol ids only mean something to one table.
func appendTuple(dst []byte, t datalog.Tuple, kinds []datalog.ColumnKind, symbols *datalog.SymbolTable) ([]byte, error) {
	for i, v := range t {
		if kinds[i] == datalog.Number {
			dst = binary.BigEndian.AppendUint64(dst, uint64(v)^(1<<63))
			continue
		}
		s, ok := symbols.Resolve(v)
		if !ok {
			return nil, fmt.Errorf("column %d: unknown symbol id %d", i, v)
		}
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		dst = append(dst, s...)
	}
	return dst, nil
}

// decodeTuple decodes the tuple part of a key into t, interning symbols.
func decodeTuple(key []byte, t datalog.Tuple, kinds []datalog.ColumnKind, symbols *datalog.SymbolTable) error {
	for i, kind := range kinds {
		if kind == datalog.Number {
			if len(key) < 8 {
				return fmt.Errorf("%w: column %d truncated", errCorruptKey, i)
			}
			t[i] = datalog.Value(binary.BigEndian.Uint64(key) ^ (1 << 63))
			key = key[8:]
			continue
		}
		n, w := binary.Uvarint(key)
		if w <= 0 || uint64(len(key)-w) < n {
			return fmt.Errorf("%w: column %d truncated", errCorruptKey, i)
		}
		key = key[w:]
		t[i] = symbols.Intern(string(key[:n]))
		key = key[n:]
	}
	if len(key) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", errCorruptKey, len(key))
	}
	return nil
}
