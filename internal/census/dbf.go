package census

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"ineqmx/internal/tabular"
)

// ErrInvalidDBF is returned for files that are not dBase III tables.
var ErrInvalidDBF = errors.New("invalid dbf file")

const (
	dbfHeaderSize     = 32
	dbfFieldSize      = 32
	dbfFieldTerm      = 0x0D
	dbfDeletedFlag    = '*'
	dbfMaxRecordBytes = 1 << 16
)

// dbfHeader is the fixed part of a dBase III file header.
type dbfHeader struct {
	Version      byte
	Year         byte
	Month        byte
	Day          byte
	Records      uint32
	HeaderLength uint16
	RecordLength uint16
	_            [20]byte
}

// DBFField describes one column of a dBase table.
type DBFField struct {
	Name     string
	Type     byte
	Length   int
	Decimals int
}

// ReadDBF decodes the attribute table of a shapefile. Text is decoded with enc;
// nil means Windows-1252. Deleted records are skipped and values are trimmed.
func ReadDBF(r io.Reader, enc encoding.Encoding) (*tabular.Table, []DBFField, error) {
	if enc == nil {
		enc = charmap.Windows1252
	}
	br := bufio.NewReader(r)

	var h dbfHeader
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDBF, err)
	}
	if h.HeaderLength < dbfHeaderSize+1 || h.RecordLength == 0 || int(h.RecordLength) > dbfMaxRecordBytes {
		return nil, nil, fmt.Errorf("%w: header length %d, record length %d", ErrInvalidDBF, h.HeaderLength, h.RecordLength)
	}

	rest := make([]byte, int(h.HeaderLength)-dbfHeaderSize)
	if _, err := io.ReadFull(br, rest); err != nil {
		return nil, nil, fmt.Errorf("%w: field descriptors: %v", ErrInvalidDBF, err)
	}

	dec := enc.NewDecoder()
	var fields []DBFField
	width := 1
	for off := 0; off+dbfFieldSize <= len(rest) && rest[off] != dbfFieldTerm; off += dbfFieldSize {
		d := rest[off : off+dbfFieldSize]
		name, err := dec.Bytes(bytes.TrimRight(d[:11], "\x00 "))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: field name: %v", ErrInvalidDBF, err)
		}
		f := DBFField{Name: string(name), Type: d[11], Length: int(d[16]), Decimals: int(d[17])}
		fields = append(fields, f)
		width += f.Length
	}
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("%w: no fields", ErrInvalidDBF)
	}
	if width != int(h.RecordLength) {
		return nil, nil, fmt.Errorf("%w: fields span %d bytes, record length is %d", ErrInvalidDBF, width, h.RecordLength)
	}

	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}

	rows := make([][]string, 0, h.Records)
	rec := make([]byte, h.RecordLength)
	for n := uint32(0); n < h.Records; n++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, nil, fmt.Errorf("%w: record %d: %v", ErrInvalidDBF, n, err)
		}
		if rec[0] == dbfDeletedFlag {
			continue
		}
		row := make([]string, len(fields))
		off := 1
		for i, f := range fields {
			raw := rec[off : off+f.Length]
			off += f.Length
			v, err := dec.Bytes(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: record %d field %s: %v", ErrInvalidDBF, n, f.Name, err)
			}
			row[i] = strings.TrimSpace(strings.TrimRight(string(v), "\x00"))
		}
		rows = append(rows, row)
	}
	return tabular.New(header, rows), fields, nil
}

// ReadDBFFile reads a .dbf file. A sibling .cpg file naming UTF-8 switches the
// text encoding from the Windows-1252 default.
func ReadDBFFile(path string) (*tabular.Table, []DBFField, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadDBF(f, codePage(strings.TrimSuffix(path, ".dbf")+".cpg"))
}

func codePage(cpg string) encoding.Encoding {
	b, err := os.ReadFile(cpg)
	if err != nil {
		return nil
	}
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "UTF-8", "UTF8", "65001":
		return unicode.UTF8
	case "ISO-8859-1", "88591", "LATIN1":
		return charmap.ISO8859_1
	}
	return nil
}

// WriteDBF encodes a table as a dBase III file with character fields sized to
// the longest value. It produces fixtures and small exports.
func WriteDBF(w io.Writer, t *tabular.Table, enc encoding.Encoding) error {
	if enc == nil {
		enc = charmap.Windows1252
	}
	e := enc.NewEncoder()

	encoded := make([][][]byte, len(t.Rows))
	lengths := make([]int, len(t.Header))
	for i, h := range t.Header {
		if len(h) > 10 {
			return fmt.Errorf("field name %q longer than 10 bytes", h)
		}
		lengths[i] = 1
	}
	for r, row := range t.Rows {
		encoded[r] = make([][]byte, len(t.Header))
		for i := range t.Header {
			b, err := e.Bytes([]byte(row[i]))
			if err != nil {
				return err
			}
			if len(b) > 254 {
				return fmt.Errorf("value of %s longer than 254 bytes", t.Header[i])
			}
			encoded[r][i] = b
			lengths[i] = max(lengths[i], len(b))
		}
	}

	recLen := 1
	for _, l := range lengths {
		recLen += l
	}
	h := dbfHeader{
		Version:      0x03,
		Year:         124,
		Month:        1,
		Day:          1,
		Records:      uint32(len(t.Rows)),
		HeaderLength: uint16(dbfHeaderSize + dbfFieldSize*len(t.Header) + 1),
		RecordLength: uint16(recLen),
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return err
	}
	for i, name := range t.Header {
		d := make([]byte, dbfFieldSize)
		copy(d, name)
		d[11] = 'C'
		d[16] = byte(lengths[i])
		bw.Write(d)
	}
	bw.WriteByte(dbfFieldTerm)
	for _, row := range encoded {
		bw.WriteByte(' ')
		for i, v := range row {
			bw.Write(v)
			bw.Write(bytes.Repeat([]byte{' '}, lengths[i]-len(v)))
		}
	}
	bw.WriteByte(0x1A)
	return bw.Flush()
}
