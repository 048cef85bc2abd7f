package openpass

import "testing"

func TestCalculate(t *testing.T) {
	tests := []struct {
		name     string
		password string
		nonce    string
		want     string
	}{
		{"zero nonce never seeds", "12345", "0000", "0"},
		{"empty nonce", "12345", "", "0"},
		{"complement", "12345", "9", "4294954950"},
		{"rotate left one", "12345", "4", "24690"},
		{"rotate left one twice", "12345", "44", "49380"},
		{"rotate right seven", "12345", "1", "1912602720"},
		{"leading zeros keep seed", "12345", "004", "24690"},
		{"identity after seed", "12345", "40", "24690"},
		{"rotate left five", "1", "5", "32"},
		{"rotate left twelve", "1", "6", "4096"},
		{"byte shuffle seven", "16909060", "7", "67175170"},
		{"byte shuffle eight", "16909060", "8", "50594305"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.password, tt.nonce)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Calculate(%q, %q) = %q, want %q", tt.password, tt.nonce, got, tt.want)
			}
		})
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	a, err := Calculate("12345", "603356072")
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	b, _ := Calculate("12345", "603356072")
	if a != b {
		t.Errorf("Calculate() not deterministic: %q vs %q", a, b)
	}
}

func TestCalculate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		password string
		nonce    string
	}{
		{"non numeric password", "abc", "123"},
		{"password overflows", "99999999999", "123"},
		{"non digit nonce", "12345", "12a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Calculate(tt.password, tt.nonce); err == nil {
				t.Errorf("Calculate(%q, %q) expected error", tt.password, tt.nonce)
			}
		})
	}
}
