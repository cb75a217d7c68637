package ghn

import (
	"fmt"

	"github.com/samcharles93/ghn/internal/tensor"
)

// ConvDecoder maps node embeddings to max-shaped 4D weight tensors.
//
// A linear layer expands each embedding into a (Hid0, H, W) feature map,
// which is cropped to the requested kernel size and passed through a stack of
// 1x1 convolutions producing Out*In channels per spatial position.
type ConvDecoder struct {
	OutShape   [4]int
	NumClasses int

	FC    tensor.Linear
	Conv  tensor.MLP
	Class tensor.Linear
}

// NewConvDecoder builds a decoder for embeddings of width in with the given
// hidden channel sizes.
func NewConvDecoder(in int, hid []int, outShape [4]int, numClasses int, seed int64) *ConvDecoder {
	spatial := outShape[2] * outShape[3]
	d := &ConvDecoder{
		OutShape:   outShape,
		NumClasses: numClasses,
		FC:         tensor.NewLinear(in, hid[0]*spatial, seed),
		Class:      tensor.NewLinear(outShape[0], numClasses, seed+1),
	}
	for j, h := range hid {
		out := outShape[0] * outShape[1]
		if j < len(hid)-1 {
			out = hid[j+1]
		}
		d.Conv.Layers = append(d.Conv.Layers, tensor.NewLinear(h, out, seed+int64(2+j)))
	}
	return d
}

// Forward decodes x (N, in) into (N, Out, In, kh, kw) where the kernel size
// is min(hint, OutShape) spatially. With classPred the output becomes
// (N, NumClasses, In, kh).
func (d *ConvDecoder) Forward(x *tensor.Tensor, hint [2]int, classPred bool) (*tensor.Tensor, error) {
	n := x.Shape[0]
	h, err := d.FC.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("conv decoder fc: %w", err)
	}
	tensor.ReLUInPlace(h)
	hid0 := d.FC.Out() / (d.OutShape[2] * d.OutShape[3])
	h, err = h.View(n, hid0, d.OutShape[2], d.OutShape[3])
	if err != nil {
		return nil, err
	}
	kh, kw := d.OutShape[2], d.OutShape[3]
	if hint[0]+hint[1] > 0 {
		kh, kw = min(hint[0], kh), min(hint[1], kw)
		h = h.Crop([]int{n, hid0, kh, kw})
	}

	// 1x1 convolutions act on the channel axis at every position.
	h, err = d.Conv.Forward(h.Permute(0, 2, 3, 1))
	if err != nil {
		return nil, fmt.Errorf("conv decoder conv: %w", err)
	}
	w, err := h.Permute(0, 3, 1, 2).View(n, d.OutShape[0], d.OutShape[1], kh, kw)
	if err != nil {
		return nil, err
	}
	if !classPred {
		return w, nil
	}
	if kh != kw {
		return nil, fmt.Errorf("%w: class prediction requires square kernels, got %dx%d", tensor.ErrShape, kh, kw)
	}
	// (N, Out, In, kh) taken at kw=0, then a 1x1 conv Out -> NumClasses.
	c := w.Crop([]int{n, d.OutShape[0], d.OutShape[1], kh})
	tensor.ReLUInPlace(c)
	c, err = d.Class.Forward(c.Permute(0, 2, 3, 1))
	if err != nil {
		return nil, fmt.Errorf("conv decoder class layer: %w", err)
	}
	return c.Permute(0, 3, 1, 2), nil
}

// tensors lists the decoder weights under stable names.
func (d *ConvDecoder) tensors(prefix string, out map[string]*tensor.Tensor) {
	linearTensors(prefix+"fc", d.FC, out)
	for i, l := range d.Conv.Layers {
		linearTensors(fmt.Sprintf("%sconv.%d", prefix, i), l, out)
	}
	linearTensors(prefix+"class_layer_predictor", d.Class, out)
}

func linearTensors(name string, l tensor.Linear, out map[string]*tensor.Tensor) {
	out[name+".weight"] = l.W
	if l.B != nil {
		out[name+".bias"] = l.B
	}
}
