package utils

import "testing"

func TestNormalizeLineNumber(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{args: "+8613800138000", want: "13800138000"},
		{args: " 13800138000 ", want: "13800138000"},
		{args: "+37060000000", want: "+37060000000"},
		{args: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			if got := NormalizeLineNumber(tt.args); got != tt.want {
				t.Errorf("NormalizeLineNumber() = %v, want %v", got, tt.want)
			}
		})
	}
}
