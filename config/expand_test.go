package config

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("FG_HOST", "cache.internal")
	t.Setenv("FG_PORT", "6380")

	tests := []struct {
		in   string
		want string
	}{
		{in: "redis://localhost:6379/0", want: "redis://localhost:6379/0"},
		{in: "redis://${FG_HOST}:${FG_PORT}/0", want: "redis://cache.internal:6380/0"},
		{in: "redis://$FG_HOST:6379", want: "redis://cache.internal:6379"},
		{in: "redis://:pa$$word@${FG_HOST}", want: "redis://:pa$word@cache.internal"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		got, err := ExpandEnvStrict(tt.in)
		if err != nil {
			t.Errorf("ExpandEnvStrict(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandEnvStrict(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvStrict_ReportsEveryMissingVar(t *testing.T) {
	t.Setenv("FG_PRESENT", "ok")

	_, err := ExpandEnvStrict("${FG_PRESENT}/${FG_MISSING_B}/${FG_MISSING_A}/${FG_MISSING_B}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("error = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), "FG_MISSING_A, FG_MISSING_B") {
		t.Errorf("error = %q, want sorted unique names", err.Error())
	}
}
