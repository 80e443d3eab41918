package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type page struct {
	URL     string    `json:"url" msgpack:"url" cbor:"url"`
	Status  int       `json:"status" msgpack:"status" cbor:"status"`
	Body    []byte    `json:"body" msgpack:"body" cbor:"body"`
	Fetched time.Time `json:"fetched" msgpack:"fetched" cbor:"fetched"`
}

func TestCodecs_PreserveValue(t *testing.T) {
	in := page{
		URL:     "https://a.test",
		Status:  200,
		Body:    []byte("<html></html>"),
		Fetched: time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC),
	}

	codecs := map[string]Codec[page]{
		"json":     JSON[page]{},
		"msgpack":  Msgpack[page]{},
		"cbor":     MustCBOR[page](false),
		"cbor-det": MustCBOR[page](true),
	}

	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			out, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if out.URL != in.URL || out.Status != in.Status || !bytes.Equal(out.Body, in.Body) {
				t.Errorf("Decode() = %+v, want %+v", out, in)
			}
			if !out.Fetched.Equal(in.Fetched) {
				t.Errorf("Fetched = %v, want %v", out.Fetched, in.Fetched)
			}
		})
	}
}

func TestCodecs_DecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec[page]
		input []byte
	}{
		{"json", JSON[page]{}, []byte("{")},
		{"msgpack", Msgpack[page]{}, []byte{0xc1}},
		{"cbor", MustCBOR[page](false), []byte{0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Decode(tt.input)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Decode() err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	in := map[string]int{"z": 1, "a": 2, "m": 3, "b": 4}

	first, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, _ := c.Encode(in)
		if !bytes.Equal(first, again) {
			t.Fatal("deterministic encoding produced different bytes")
		}
	}
}

func TestRaw(t *testing.T) {
	in := []byte("payload")
	b, _ := Raw{}.Encode(in)
	out, _ := Raw{}.Decode(b)
	if !bytes.Equal(in, out) {
		t.Errorf("Raw round trip = %q, want %q", out, in)
	}
}
