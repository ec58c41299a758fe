package fsutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", "unknown"},
		{"plain", "kinegen-run.csv", "kinegen-run.csv"},
		{"fingerprint", "probe:14;tgt:1000060120;hit:2112;proc:CC", "probe_14_tgt_1000060120_hit_2112_proc_CC"},
		{"collapses runs", "a::;;b", "a_b"},
		{"trims edges", "..//x//..", "x"},
		{"only separators", "::;;", "unknown"},
		{"negative code", "probe:-14", "probe_-14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("a", 500))
	assert.Len(t, got, maxFilenameLen)
}
