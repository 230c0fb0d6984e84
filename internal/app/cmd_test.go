package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"empty defaults to agent", []string{}, CommandAgent},
		{"agent", []string{"agent"}, CommandAgent},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"unknown defaults to agent", []string{"serve"}, CommandAgent},
		{"extra args ignored", []string{"healthcheck", "--verbose"}, CommandHealthcheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
