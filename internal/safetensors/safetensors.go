// Package safetensors reads and writes the safetensors container used for
// hypernetwork checkpoints and predicted parameter exports.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"
)

// ErrCorrupt reports a malformed container.
var ErrCorrupt = errors.New("corrupt safetensors file")

const metadataKey = "__metadata__"

// maxHeader bounds the JSON header so a bad length cannot allocate wildly.
const maxHeader = 100 << 20

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an open safetensors container. The data is mapped read-only when
// the platform allows it.
type File struct {
	Path     string
	Metadata map[string]string
	Tensors  map[string]TensorInfo

	data    []byte
	body    []byte
	mmapped bool
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open maps path and parses its header. The file must be closed.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size < 8 || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s: size %d", ErrCorrupt, path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	mmapped := err == nil
	if !mmapped {
		data = make([]byte, size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, err
		}
	}
	sf, err := parse(data)
	if err != nil {
		if mmapped {
			_ = unix.Munmap(data)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sf.Path = path
	sf.mmapped = mmapped
	return sf, nil
}

func parse(data []byte) (*File, error) {
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > maxHeader || 8+headerLen > uint64(len(data)) {
		return nil, fmt.Errorf("%w: header length %d", ErrCorrupt, headerLen)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &raw); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	f := &File{data: data, body: data[8+headerLen:], Tensors: make(map[string]TensorInfo, len(raw))}
	if msg, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(msg, &f.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %w", ErrCorrupt, err)
		}
		delete(raw, metadataKey)
	}
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %w", ErrCorrupt, name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[0] < 0 || th.DataOffsets[1] < th.DataOffsets[0] || th.DataOffsets[1] > int64(len(f.body)) {
			return nil, fmt.Errorf("%w: tensor %s: data_offsets %v", ErrCorrupt, name, th.DataOffsets)
		}
		f.Tensors[name] = TensorInfo{DType: th.DType, Shape: th.Shape, Start: th.DataOffsets[0], End: th.DataOffsets[1]}
	}
	return f, nil
}

// Close releases the mapping.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data, f.body = nil, nil
	return err
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// ReadTensor returns the raw bytes of a tensor. The slice aliases the
// mapping and is only valid until Close.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	if f.body == nil {
		return nil, TensorInfo{}, fmt.Errorf("read %s: file closed", name)
	}
	return f.body[t.Start:t.End], t, nil
}

// ReadTensorF32 decodes a F32, BF16 or F16 tensor into a fresh slice.
func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	width := map[string]int{"F32": 4, "BF16": 2, "F16": 2}[info.DType]
	if width == 0 {
		return nil, TensorInfo{}, fmt.Errorf("unsupported dtype %s", info.DType)
	}
	if len(raw) != n*width {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %d bytes for %d %s values", name, len(raw), n, info.DType)
	}
	out := make([]float32, n)
	for i := range out {
		switch info.DType {
		case "F32":
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		case "BF16":
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		case "F16":
			out[i] = fp16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	}
	return out, info, nil
}

// numElements multiplies dims. A scalar (empty shape) has one element.
func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if d > 0 && n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
			break
		}
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		f = sign<<31 | e<<23 | (frac&0x3FF)<<13
	case 0x1F:
		f = sign<<31 | 0x7F800000 | frac<<13
	default:
		f = sign<<31 | (exp+127-15)<<23 | frac<<13
	}
	return math.Float32frombits(f)
}
