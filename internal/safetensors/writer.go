package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
)

// Entry is one F32 tensor to write.
type Entry struct {
	Name  string
	Shape []int
	Data  []float32
}

// Write encodes entries as F32 tensors in name order. metadata may be nil.
func Write(w io.Writer, entries []Entry, metadata map[string]string) error {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var off int64
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Name == e.Name {
			return fmt.Errorf("duplicate tensor %s", e.Name)
		}
		n, err := numElements(e.Shape)
		if err != nil || n != len(e.Data) {
			return fmt.Errorf("tensor %s: shape %v does not hold %d values", e.Name, e.Shape, len(e.Data))
		}
		end := off + int64(4*n)
		header[e.Name] = tensorHeader{DType: "F32", Shape: e.Shape, DataOffsets: []int64{off, end}}
		off = end
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	// Pad the header to an 8-byte boundary with spaces.
	for len(hb)%8 != 0 {
		hb = append(hb, ' ')
	}

	bw := bufio.NewWriter(w)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(hb)))
	if _, err := bw.Write(buf[:]); err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	for _, e := range sorted {
		for _, v := range e.Data {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			if _, err := bw.Write(buf[:4]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteFile writes entries to path, replacing any existing file.
func WriteFile(path string, entries []Entry, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, entries, metadata); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
