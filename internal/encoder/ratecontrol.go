package encoder

import "fmt"

// RateControlLayerBound is one flat (non-pointer) QP bound for a single
// temporal layer. Layer 0 covers every reference picture (IDR/I/P); layer 1,
// if present, covers non-reference B-frames.
type RateControlLayerBound struct {
	Layer        uint32
	MinQP, MaxQP uint8
}

// RateControl is the flat, tagged rate-control descriptor a backend builds
// from its EncoderConfig at construction; the driver itself never builds or
// passes one (spec. §9: "the rate-control descriptor is a
// self-referential pointer graph... the driver treats it as an opaque
// bundle"). REDESIGN FLAG item 1 calls for a flat, tagged-union
// representation here instead of mirroring that pointer graph; LayerBounds
// is consumed by a single pass (BoundFor) rather than walked as a graph.
type RateControl struct {
	Mode        RateControlMode
	LayerBounds []RateControlLayerBound
}

// BoundFor returns the layer bound governing pictures of type t, falling
// back to the layer-0 (reference-picture) bound for any type without its
// own dedicated layer.
func (rc RateControl) BoundFor(t FrameType) RateControlLayerBound {
	layer := uint32(0)
	if t == FrameB {
		layer = 1
	}
	var layerZero RateControlLayerBound
	for _, b := range rc.LayerBounds {
		if b.Layer == layer {
			return b
		}
		if b.Layer == 0 {
			layerZero = b
		}
	}
	return layerZero
}

// RateControlBuilder assembles a RateControl one layer at a time instead of
// constructing a pointer graph directly (spec. §9 REDESIGN FLAG: "construct
// a builder-style object that produces a flat, tagged-union representation
// consumed by a single serialization pass").
type RateControlBuilder struct {
	mode   RateControlMode
	layers []RateControlLayerBound
}

// NewRateControlBuilder starts a builder for the given mode.
func NewRateControlBuilder(mode RateControlMode) *RateControlBuilder {
	return &RateControlBuilder{mode: mode}
}

// WithLayerBound adds, or replaces, the QP bound for one temporal layer.
// Returns the builder for chaining.
func (b *RateControlBuilder) WithLayerBound(layer uint32, minQP, maxQP uint8) *RateControlBuilder {
	for i, l := range b.layers {
		if l.Layer == layer {
			b.layers[i] = RateControlLayerBound{Layer: layer, MinQP: minQP, MaxQP: maxQP}
			return b
		}
	}
	b.layers = append(b.layers, RateControlLayerBound{Layer: layer, MinQP: minQP, MaxQP: maxQP})
	return b
}

// Build validates the assembled layers and returns the RateControl. Every
// layer's MinQP must not exceed its MaxQP, and layer 0 must be present since
// every reference picture needs a bound.
func (b *RateControlBuilder) Build() (RateControl, error) {
	hasLayerZero := false
	for _, l := range b.layers {
		if l.MinQP > l.MaxQP {
			return RateControl{}, fmt.Errorf("h264enc: rate control layer %d: min_qp %d exceeds max_qp %d", l.Layer, l.MinQP, l.MaxQP)
		}
		if l.Layer == 0 {
			hasLayerZero = true
		}
	}
	if !hasLayerZero {
		return RateControl{}, fmt.Errorf("h264enc: rate control must define a bound for layer 0")
	}
	return RateControl{Mode: b.mode, LayerBounds: append([]RateControlLayerBound(nil), b.layers...)}, nil
}
