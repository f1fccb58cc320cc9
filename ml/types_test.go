package ml

import "testing"

func TestParseDType(t *testing.T) {
	cases := []struct {
		in   string
		want DType
		err  bool
	}{
		{"", DTypeF32, false},
		{"f32", DTypeF32, false},
		{" FP16 ", DTypeF16, false},
		{"bf16", DTypeBF16, false},
		{"bfloat16", DTypeBF16, false},
		{"q8_0", DTypeOther, true},
	}

	for _, tt := range cases {
		got, err := ParseDType(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseDType(%q): Fehler = %v, erwartet Fehler %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseDType(%q) = %v, erwartet %v", tt.in, got, tt.want)
		}
	}
}
