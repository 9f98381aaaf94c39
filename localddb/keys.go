package localddb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/acksell/dynawire/attr"
)

// Badger key layout: [table name][0x00][partition key][0x00][sort key].
// Key values are encoded so that byte order equals DynamoDB sort order for
// all three key kinds, which lets queries run as plain prefix iterations.

const keySeparator byte = 0x00

// Kind marker, first byte of every encoded key value.
const (
	keyMarkString byte = 'S'
	keyMarkNumber byte = 'N'
	keyMarkBinary byte = 'B'
)

func tablePrefix(table string) []byte {
	return append([]byte(table), keySeparator)
}

// itemKey encodes the full badger key for an item key. The key must already
// be validated against the table schema.
func itemKey(d TableDef, key attr.Item) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(tablePrefix(d.Name))

	pk, err := encodeKeyValue(key[d.PartitionKey.Name], d.PartitionKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode partition key: %w", err)
	}
	buf.Write(pk)
	buf.WriteByte(keySeparator)

	if d.SortKey != nil {
		sk, err := encodeKeyValue(key[d.SortKey.Name], d.SortKey.Kind)
		if err != nil {
			return nil, fmt.Errorf("encode sort key: %w", err)
		}
		buf.Write(sk)
	}
	return buf.Bytes(), nil
}

// partitionPrefix encodes the prefix shared by every item of one partition.
func partitionPrefix(d TableDef, pk attr.Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(tablePrefix(d.Name))
	enc, err := encodeKeyValue(pk, d.PartitionKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode partition key: %w", err)
	}
	buf.Write(enc)
	buf.WriteByte(keySeparator)
	return buf.Bytes(), nil
}

func encodeKeyValue(v attr.Value, kind KeyKind) ([]byte, error) {
	var buf bytes.Buffer
	switch kind {
	case KindString:
		s, ok := v.AsString()
		if !ok {
			return nil, fmt.Errorf("expected S key value, got %s", v.Tag())
		}
		buf.WriteByte(keyMarkString)
		buf.Write(escapeBytes([]byte(s)))

	case KindNumber:
		n, ok := v.AsNumber()
		if !ok {
			return nil, fmt.Errorf("expected N key value, got %s", v.Tag())
		}
		enc, err := encodeNumber(n)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(keyMarkNumber)
		buf.Write(enc)

	case KindBinary:
		b, ok := v.AsBinary()
		if !ok {
			return nil, fmt.Errorf("expected B key value, got %s", v.Tag())
		}
		buf.WriteByte(keyMarkBinary)
		buf.Write(escapeBytes(b))

	default:
		return nil, fmt.Errorf("unsupported key kind %q", kind)
	}
	return buf.Bytes(), nil
}

// encodeNumber maps a number onto bytes whose lexicographic order matches
// numeric order: a sign byte followed by big-endian float64 bits. Positive
// values get their float sign bit flipped under a 0x80 sign byte; negatives
// get all bits inverted under 0x7F, so more negative sorts lower.
func encodeNumber(n attr.Number) ([]byte, error) {
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", n, err)
	}
	bits := math.Float64bits(f)
	buf := make([]byte, 9)
	if f >= 0 {
		buf[0] = 0x80
		bits ^= 1 << 63
	} else {
		buf[0] = 0x7F
		bits = ^bits
	}
	binary.BigEndian.PutUint64(buf[1:], bits)
	return buf, nil
}

func decodeNumber(enc []byte) (attr.Number, error) {
	if len(enc) != 9 {
		return "", fmt.Errorf("encoded number has %d bytes, want 9", len(enc))
	}
	bits := binary.BigEndian.Uint64(enc[1:])
	if enc[0] == 0x80 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	f := math.Float64frombits(bits)
	return attr.Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// decodeSortKey turns the sort key portion of a badger key back into an
// attribute value.
func decodeSortKey(enc []byte) (attr.Value, error) {
	if len(enc) == 0 {
		return attr.Value{}, fmt.Errorf("empty sort key bytes")
	}
	switch enc[0] {
	case keyMarkString:
		return attr.String(string(unescapeBytes(enc[1:]))), nil
	case keyMarkNumber:
		n, err := decodeNumber(enc[1:])
		if err != nil {
			return attr.Value{}, err
		}
		return attr.Num(n), nil
	case keyMarkBinary:
		return attr.Binary(unescapeBytes(enc[1:])), nil
	}
	return attr.Value{}, fmt.Errorf("unknown key marker %#x", enc[0])
}

// escapeBytes rewrites 0x00 as 0x01 0x01 and 0x01 as 0x01 0x02 so encoded
// values never collide with the key separator. The mapping keeps byte order
// and prefix relationships intact.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.WriteByte(0x01)
			buf.WriteByte(0x01)
		case 0x01:
			buf.WriteByte(0x01)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

func unescapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < len(b); i++ {
		if b[i] == 0x01 && i+1 < len(b) {
			switch b[i+1] {
			case 0x01:
				buf.WriteByte(0x00)
				i++
				continue
			case 0x02:
				buf.WriteByte(0x01)
				i++
				continue
			}
		}
		buf.WriteByte(b[i])
	}
	return buf.Bytes()
}

// incrementBytes returns the smallest byte string greater than every string
// prefixed by b. Used to position reverse iterators at the end of a prefix
// range.
func incrementBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out
		}
		out[i] = 0
	}
	return append(out, 0x00)
}
