package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 0.5, -0.5}

	data, err := EncodeWAV(samples)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	clip, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != OutputSampleRate {
		t.Errorf("sample rate = %d; want %d", clip.SampleRate, OutputSampleRate)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("sample count = %d; want %d", len(clip.Samples), len(samples))
	}
	for i, s := range clip.Samples {
		diff := float64(s - samples[i])
		if diff > 1.0/32767 || diff < -1.0/32767 {
			t.Errorf("sample %d = %v; want ~%v", i, s, samples[i])
		}
	}
}

func TestDecodeWAV_Empty(t *testing.T) {
	if _, err := DecodeWAV(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestDecodeWAV_Garbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("not a wav file at all")); err == nil {
		t.Fatal("expected error for invalid input")
	}
}

func TestClipSeconds(t *testing.T) {
	c := Clip{Samples: make([]float32, 48000), SampleRate: 24000}
	if got := c.Seconds(); got != 2.0 {
		t.Errorf("Seconds() = %v; want 2.0", got)
	}
}

func TestWriteWAVHeaderStreaming(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteWAVHeaderStreaming(&buf)
	if err != nil {
		t.Fatalf("WriteWAVHeaderStreaming: %v", err)
	}
	if n != 44 {
		t.Errorf("header length = %d; want 44", n)
	}

	hdr := buf.Bytes()
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if binary.LittleEndian.Uint32(hdr[40:44]) != 0xFFFFFFFF {
		t.Error("data size should be the streaming sentinel")
	}
	if binary.LittleEndian.Uint32(hdr[24:28]) != OutputSampleRate {
		t.Error("unexpected sample rate in header")
	}
}

func TestWritePCM16Samples_Clamps(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WritePCM16Samples(&buf, []float32{2.0, -2.0}); err != nil {
		t.Fatalf("WritePCM16Samples: %v", err)
	}

	data := buf.Bytes()
	if v := int16(binary.LittleEndian.Uint16(data[0:2])); v != 32767 {
		t.Errorf("clamped positive sample = %d; want 32767", v)
	}
	if v := int16(binary.LittleEndian.Uint16(data[2:4])); v != -32767 {
		t.Errorf("clamped negative sample = %d; want -32767", v)
	}
}
