package dataset

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ArchiveExt is the file extension of yearly archives ({source}_{year}.grid.zst).
const ArchiveExt = ".grid.zst"

var archiveMagic = [4]byte{'C', 'B', 'G', '1'}

// Archive codec errors.
var (
	ErrBadMagic        = errors.New("not a grid archive (bad magic)")
	ErrTruncatedValues = errors.New("grid archive payload is truncated")
)

// archiveHeader is the JSON header preceding the value payload inside the
// compressed stream.
type archiveHeader struct {
	Variable string    `json:"variable"`
	Units    string    `json:"units"`
	Source   string    `json:"source"`
	Times    []int64   `json:"times"` // unix seconds, UTC
	Lats     []float64 `json:"lats"`
	Lons     []float64 `json:"lons"`
}

// Grid is one decoded yearly archive: a single year of the full grid.
type Grid struct {
	Variable string
	Units    string
	Source   string
	Times    []time.Time
	Lats     []float64
	Lons     []float64
	Values   []float64
}

// ReadArchive decodes one yearly archive file.
func ReadArchive(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer dec.Close()

	var magic [4]byte
	if _, err := io.ReadFull(dec, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != archiveMagic {
		return nil, fmt.Errorf("%w: %s", ErrBadMagic, path)
	}

	var headerLen uint32
	if err := binary.Read(dec, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(dec, headerBytes); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var header archiveHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	n := len(header.Times) * len(header.Lats) * len(header.Lons)
	raw := make([]byte, n*8)
	if _, err := io.ReadFull(dec, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedValues, err)
	}

	values := make([]float64, n)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}

	times := make([]time.Time, len(header.Times))
	for i, s := range header.Times {
		times[i] = time.Unix(s, 0).UTC()
	}

	return &Grid{
		Variable: header.Variable,
		Units:    header.Units,
		Source:   header.Source,
		Times:    times,
		Lats:     header.Lats,
		Lons:     header.Lons,
		Values:   values,
	}, nil
}

// WriteArchive encodes one yearly archive file. The query service only
// reads archives; the writer exists for the ETL boundary and for tests.
func WriteArchive(path string, g *Grid) error {
	if len(g.Values) != len(g.Times)*len(g.Lats)*len(g.Lons) {
		return fmt.Errorf("%w: %d values for shape (%d, %d, %d)",
			ErrShapeMismatch, len(g.Values), len(g.Times), len(g.Lats), len(g.Lons))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("open zstd writer: %w", err)
	}

	header := archiveHeader{
		Variable: g.Variable,
		Units:    g.Units,
		Source:   g.Source,
		Times:    make([]int64, len(g.Times)),
		Lats:     g.Lats,
		Lons:     g.Lons,
	}
	for i, t := range g.Times {
		header.Times[i] = t.UTC().Unix()
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	if _, err := enc.Write(archiveMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(enc, binary.LittleEndian, uint32(len(headerBytes))); err != nil {
		return fmt.Errorf("write header length: %w", err)
	}
	if _, err := enc.Write(headerBytes); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	raw := make([]byte, len(g.Values)*8)
	for i, v := range g.Values {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	if _, err := enc.Write(raw); err != nil {
		return fmt.Errorf("write values: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush zstd stream: %w", err)
	}
	return f.Close()
}
