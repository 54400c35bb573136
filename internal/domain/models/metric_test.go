package models

import (
	"encoding/json"
	"testing"
)

func TestCollectionClone_IsDeep(t *testing.T) {
	orig := Collection{
		"w": {Key: "w", Name: "Weight", Data: []DataPoint{{Date: "2024-01-01", Value: 70.0}}},
	}
	cp := orig.Clone()
	cp["w"].Data[0].Value = 99.0

	if got := orig["w"].Data[0].Value; got != 70.0 {
		t.Errorf("original mutated through clone: value = %v, want 70", got)
	}
}

func TestCollectionClone_NilData(t *testing.T) {
	cp := Collection{"a": {Key: "a"}}.Clone()
	if cp["a"].Data == nil {
		t.Error("Clone() left Data nil, want empty slice")
	}
	if Collection(nil).Clone() == nil {
		t.Error("Clone() of nil collection returned nil")
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int32(5), 5.0},
		{int64(7), 7.0},
		{3, 3.0},
		{json.Number("1.5"), 1.5},
		{"x", "x"},
		{nil, nil},
	}
	for _, tt := range tests {
		if got := NormalizeValue(tt.in); got != tt.want {
			t.Errorf("NormalizeValue(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{70.0, "70"},
		{70.5, "70.5"},
		{int64(3), "3"},
		{"good", "good"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLessDate(t *testing.T) {
	if !LessDate("2024-01-02", "2024-01-10") {
		t.Error("LessDate(2024-01-02, 2024-01-10) = false, want true")
	}
	if LessDate("2024-02-01", "2024-01-31") {
		t.Error("LessDate(2024-02-01, 2024-01-31) = true, want false")
	}
}

func TestParseCollection(t *testing.T) {
	c, err := ParseCollection("")
	if err != nil {
		t.Fatalf("ParseCollection(\"\") error = %v", err)
	}
	if len(c) != 0 {
		t.Errorf("ParseCollection(\"\") len = %d, want 0", len(c))
	}

	c, err = ParseCollection(`{"m1":{"key":"m1","data":[{"date":"2024-01-01","value":70}]}}`)
	if err != nil {
		t.Fatalf("ParseCollection() error = %v", err)
	}
	if got := c["m1"].Data[0].Value; got != 70.0 {
		t.Errorf("value = %#v, want 70.0", got)
	}

	if _, err := ParseCollection("{not json"); err == nil {
		t.Error("ParseCollection(invalid) error = nil, want error")
	}
}

func TestCollectionEncode_RoundTrip(t *testing.T) {
	in := Collection{"m1": {Key: "m1", Name: "Weight", Color: "#fff", Data: []DataPoint{{Date: "2024-01-01", Value: "high"}}}}
	raw, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := ParseCollection(raw)
	if err != nil {
		t.Fatalf("ParseCollection() error = %v", err)
	}
	if out["m1"].Name != "Weight" || out["m1"].Data[0].Value != "high" {
		t.Errorf("round trip = %+v, want name Weight and value high", out["m1"])
	}
}
