package encoder

import "testing"

func TestRateControlBuilderBuildsLayeredBounds(t *testing.T) {
	rc, err := NewRateControlBuilder(RateControlCBR).
		WithLayerBound(0, 18, 34).
		WithLayerBound(1, 20, 40).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := rc.BoundFor(FrameP); got != (RateControlLayerBound{Layer: 0, MinQP: 18, MaxQP: 34}) {
		t.Fatalf("BoundFor(P) = %+v", got)
	}
	if got := rc.BoundFor(FrameB); got != (RateControlLayerBound{Layer: 1, MinQP: 20, MaxQP: 40}) {
		t.Fatalf("BoundFor(B) = %+v", got)
	}
}

func TestRateControlBuilderFallsBackToLayerZero(t *testing.T) {
	rc, err := NewRateControlBuilder(RateControlVBR).
		WithLayerBound(0, 10, 30).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := rc.BoundFor(FrameB); got.Layer != 0 {
		t.Fatalf("expected FrameB to fall back to layer 0, got %+v", got)
	}
}

func TestRateControlBuilderRejectsInvertedBound(t *testing.T) {
	_, err := NewRateControlBuilder(RateControlCBR).
		WithLayerBound(0, 40, 20).
		Build()
	if err == nil {
		t.Fatalf("expected an error for min_qp > max_qp")
	}
}

func TestRateControlBuilderRequiresLayerZero(t *testing.T) {
	_, err := NewRateControlBuilder(RateControlCBR).
		WithLayerBound(1, 10, 30).
		Build()
	if err == nil {
		t.Fatalf("expected an error when layer 0 is never bound")
	}
}

func TestWithLayerBoundReplacesExistingLayer(t *testing.T) {
	rc, err := NewRateControlBuilder(RateControlConstantQuality).
		WithLayerBound(0, 10, 30).
		WithLayerBound(0, 15, 35).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rc.LayerBounds) != 1 {
		t.Fatalf("expected replacing layer 0 to keep a single entry, got %d", len(rc.LayerBounds))
	}
	if got := rc.BoundFor(FrameP); got.MinQP != 15 || got.MaxQP != 35 {
		t.Fatalf("expected the replacement bound, got %+v", got)
	}
}
