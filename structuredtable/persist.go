package structuredtable

import (
	"bytes"
	stdbinary "encoding/binary"
	"fmt"
	"io"

	bin "github.com/gagliardetto/binary"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/bytebufferpool"

	"github.com/dustin/go-humanize"
	"github.com/rpcpool/borghash/continuity"
)

var magic = [4]byte{'B', 'H', 'T', '1'}

// header is the persisted envelope's metadata: everything needed to
// reconstruct a Table before any entry is read.
type header struct {
	namespace  string
	version    uint32
	keySize    uint32
	valueSize  uint32
	fields     []string
	format     []FieldCode
	compressed bool
	count      uint32
}

func (t *Table) header() header {
	return header{
		namespace:  t.namespace,
		version:    t.version,
		keySize:    uint32(t.keySize),
		valueSize:  uint32(t.shape.Size()),
		fields:     t.shape.fields,
		format:     t.shape.format,
		compressed: t.compression,
		count:      uint32(t.Len()),
	}
}

// headerEncodedSize returns the byte length of the magic, the
// length-prefix, and the header body -- everything Write emits before
// the entry stream.
func headerEncodedSize(h header) int {
	n := 1 + len(h.namespace) + 4 + 4 + 4 + 1
	for _, f := range h.fields {
		n += 1 + len(f) + 1
	}
	n += 1 + 4 // compressed flag + count
	return len(magic) + 4 + n
}

func encodeHeader(w io.Writer, h header) error {
	if len(h.namespace) > 255 {
		return fmt.Errorf("structuredtable: namespace %q exceeds 255 bytes", h.namespace)
	}
	if len(h.fields) > 255 {
		return fmt.Errorf("structuredtable: %d fields exceeds 255", len(h.fields))
	}
	enc := bin.NewBorshEncoder(w)
	if err := enc.WriteByte(byte(len(h.namespace))); err != nil {
		return err
	}
	if _, err := enc.Write([]byte(h.namespace)); err != nil {
		return err
	}
	if err := enc.WriteUint32(h.version, stdbinary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteUint32(h.keySize, stdbinary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteUint32(h.valueSize, stdbinary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteByte(byte(len(h.fields))); err != nil {
		return err
	}
	for i, name := range h.fields {
		if len(name) > 255 {
			return fmt.Errorf("structuredtable: field name %q exceeds 255 bytes", name)
		}
		if err := enc.WriteByte(byte(len(name))); err != nil {
			return err
		}
		if _, err := enc.Write([]byte(name)); err != nil {
			return err
		}
		if err := enc.WriteByte(byte(h.format[i])); err != nil {
			return err
		}
	}
	var compressedByte byte
	if h.compressed {
		compressedByte = 1
	}
	if err := enc.WriteByte(compressedByte); err != nil {
		return err
	}
	return enc.WriteUint32(h.count, stdbinary.LittleEndian)
}

func decodeHeader(data []byte) (header, error) {
	dec := bin.NewBorshDecoder(data)
	var h header

	nsLen, err := dec.ReadByte()
	if err != nil {
		return h, fmt.Errorf("failed to read namespace length: %w", err)
	}
	nsBuf := make([]byte, nsLen)
	if _, err := io.ReadFull(dec, nsBuf); err != nil {
		return h, fmt.Errorf("failed to read namespace: %w", err)
	}
	h.namespace = string(nsBuf)

	if h.version, err = dec.ReadUint32(bin.LE); err != nil {
		return h, fmt.Errorf("failed to read version: %w", err)
	}
	if h.keySize, err = dec.ReadUint32(bin.LE); err != nil {
		return h, fmt.Errorf("failed to read key size: %w", err)
	}
	if h.valueSize, err = dec.ReadUint32(bin.LE); err != nil {
		return h, fmt.Errorf("failed to read value size: %w", err)
	}

	fieldCount, err := dec.ReadByte()
	if err != nil {
		return h, fmt.Errorf("failed to read field count: %w", err)
	}
	h.fields = make([]string, fieldCount)
	h.format = make([]FieldCode, fieldCount)
	for i := 0; i < int(fieldCount); i++ {
		nameLen, err := dec.ReadByte()
		if err != nil {
			return h, fmt.Errorf("failed to read field %d name length: %w", i, err)
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(dec, nameBuf); err != nil {
			return h, fmt.Errorf("failed to read field %d name: %w", i, err)
		}
		h.fields[i] = string(nameBuf)

		code, err := dec.ReadByte()
		if err != nil {
			return h, fmt.Errorf("failed to read field %d format code: %w", i, err)
		}
		h.format[i] = FieldCode(code)
	}

	compressedByte, err := dec.ReadByte()
	if err != nil {
		return h, fmt.Errorf("failed to read compressed flag: %w", err)
	}
	h.compressed = compressedByte != 0

	if h.count, err = dec.ReadUint32(bin.LE); err != nil {
		return h, fmt.Errorf("failed to read entry count: %w", err)
	}
	return h, nil
}

// Write emits a self-describing snapshot of the table: magic bytes, a
// length-prefixed header (namespace, version, key/value sizes, field
// shape, compressed flag, entry count), then the concatenation of every
// live (key_bytes, value_bytes) pair, raw or, when the table was built
// WithCompression, as one zstd stream.
func (t *Table) Write(w io.Writer) error {
	hdr := t.header()

	var headerBuf bytes.Buffer
	entryBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(entryBuf)

	out := bytebufferpool.Get()
	defer bytebufferpool.Put(out)

	err := continuity.New().
		Thenf("encode header", func() error { return encodeHeader(&headerBuf, hdr) }).
		Thenf("collect entries", func() error { return t.writeEntries(entryBuf) }).
		Thenf("assemble envelope", func() error {
			if _, err := out.Write(magic[:]); err != nil {
				return err
			}
			var lenBuf [4]byte
			stdbinary.LittleEndian.PutUint32(lenBuf[:], uint32(headerBuf.Len()))
			if _, err := out.Write(lenBuf[:]); err != nil {
				return err
			}
			if _, err := out.Write(headerBuf.Bytes()); err != nil {
				return err
			}
			_, err := out.Write(entryBuf.Bytes())
			return err
		}).
		Thenf("flush", func() error {
			_, err := w.Write(out.Bytes())
			return err
		}).
		Err()
	if err != nil {
		return fmt.Errorf("structuredtable: write: %w (%v)", ErrIO, err)
	}
	log.Debugw("wrote table", "id", t.id, "entries", hdr.count, "bytes", humanize.Bytes(uint64(out.Len())))
	return nil
}

func (t *Table) writeEntries(dst *bytebufferpool.ByteBuffer) error {
	var plain *bytebufferpool.ByteBuffer
	if t.compression {
		plain = bytebufferpool.Get()
		defer bytebufferpool.Put(plain)
	} else {
		plain = dst
	}

	cur := t.ht.Items()
	for {
		k, v, ok := cur.Next()
		if !ok {
			break
		}
		if _, err := plain.Write(k); err != nil {
			return err
		}
		if _, err := plain.Write(v); err != nil {
			return err
		}
	}
	if !t.compression {
		return nil
	}

	enc, err := zstd.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := enc.Write(plain.Bytes()); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Read reconstructs a Table from a stream produced by Write. It fails
// with ErrIncompatibleFormat if the persisted namespace or version does
// not match wantNamespace/wantVersion.
func Read(r io.Reader, wantNamespace string, wantVersion uint32) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("structuredtable: read: %w (%v)", ErrIO, err)
	}
	if len(data) < len(magic)+4 || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("structuredtable: bad magic: %w", ErrIncompatibleFormat)
	}
	rest := data[len(magic):]
	headerLen := stdbinary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < headerLen {
		return nil, fmt.Errorf("structuredtable: truncated header: %w", ErrIO)
	}

	hdr, err := decodeHeader(rest[:headerLen])
	if err != nil {
		return nil, fmt.Errorf("structuredtable: decode header: %w (%v)", ErrIO, err)
	}
	if hdr.namespace != wantNamespace || hdr.version != wantVersion {
		return nil, fmt.Errorf("structuredtable: got %s/v%d, want %s/v%d: %w",
			hdr.namespace, hdr.version, wantNamespace, wantVersion, ErrIncompatibleFormat)
	}

	t, err := New(int(hdr.keySize), hdr.fields, hdr.format,
		WithNamespace(hdr.namespace), WithVersion(hdr.version))
	if err != nil {
		return nil, err
	}

	entryData := rest[headerLen:]
	if hdr.compressed {
		zr, err := zstd.NewReader(bytes.NewReader(entryData))
		if err != nil {
			return nil, fmt.Errorf("structuredtable: zstd: %w (%v)", ErrIO, err)
		}
		entryData, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("structuredtable: zstd: %w (%v)", ErrIO, err)
		}
	}

	stride := int(hdr.keySize) + t.shape.Size()
	for i := 0; i < int(hdr.count); i++ {
		off := i * stride
		if off+stride > len(entryData) {
			return nil, fmt.Errorf("structuredtable: entry %d truncated: %w", i, ErrIO)
		}
		key := entryData[off : off+int(hdr.keySize)]
		value := entryData[off+int(hdr.keySize) : off+stride]
		if err := t.ht.Upsert(key, value); err != nil {
			return nil, err
		}
	}
	log.Debugw("read table", "id", t.id, "entries", hdr.count, "bytes", humanize.Bytes(uint64(len(data))))
	return t, nil
}
