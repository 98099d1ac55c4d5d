package openh264

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/breeze-rmm/h264enc/internal/encoder"
)

func testConfig() encoder.EncoderConfig {
	return encoder.EncoderConfig{
		Profile:    encoder.ProfileMain,
		Resolution: encoder.Resolution{Width: 640, Height: 360},
		FrameRate:  30,
	}
}

func TestTargetBitRateScalesWithResolution(t *testing.T) {
	small := testConfig()
	large := testConfig()
	large.Resolution = encoder.Resolution{Width: 1920, Height: 1080}

	if got, want := targetBitRate(small), 640*360*2; got != want {
		t.Fatalf("targetBitRate(small) = %d, want %d", got, want)
	}
	if got := targetBitRate(large); got <= targetBitRate(small) {
		t.Fatalf("expected larger resolution to yield a higher target bitrate, got %d <= %d", got, targetBitRate(small))
	}
}

func TestDeviceCapabilitiesRejectsHighProfile(t *testing.T) {
	_, err := device{}.Capabilities(encoder.ProfileHigh)
	if _, ok := err.(*encoder.ErrUnsupportedProfile); !ok {
		t.Fatalf("expected *encoder.ErrUnsupportedProfile, got %T: %v", err, err)
	}
}

func TestDeviceCapabilitiesMatchesExpectedShape(t *testing.T) {
	got, err := device{}.Capabilities(encoder.ProfileMain)
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}

	want := encoder.Capabilities{
		MinQP:            0,
		MaxQP:            51,
		MinResolution:    encoder.Resolution{Width: 16, Height: 16},
		MaxResolution:    encoder.Resolution{Width: 3840, Height: 2160},
		MaxL0PReferences: 1,
		MaxL0BReferences: 0,
		MaxL1BReferences: 0,
		MaxQualityLevel:  1,
		SupportedInputFormats: []encoder.PixelFormat{
			encoder.PixelFormatNV12, encoder.PixelFormatRGBA, encoder.PixelFormatBGRA,
			encoder.PixelFormatRGB, encoder.PixelFormatBGR,
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Capabilities mismatch (-want +got):\n%s", diff)
	}
}
