package security

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestJoinWithin(t *testing.T) {
	dir := filepath.Join("result", "sparse", "run")

	tests := []struct {
		name      string
		file      string
		want      string
		wantError bool
	}{
		{"plain file", "bildstein_station1_common.pcd", filepath.Join(dir, "bildstein_station1_common.pcd"), false},
		{"dotted file", "scene.prob", filepath.Join(dir, "scene.prob"), false},
		{"empty", "", "", true},
		{"parent", "..", "", true},
		{"dot", ".", "", true},
		{"traversal", "../escape.pcd", "", true},
		{"nested", "sub/file.pcd", "", true},
		{"absolute", "/etc/passwd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinWithin(dir, tt.file)
			if (err != nil) != tt.wantError {
				t.Fatalf("JoinWithin() error = %v, wantError %v", err, tt.wantError)
			}
			if got != tt.want {
				t.Errorf("JoinWithin() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"pointsemantic_folding", "pointsemantic_folding"},
		{"PBC folding/v2", "PBC_folding_v2"},
		{"../../etc", "etc"},
		{"a  b", "a_b"},
		{"___", "unknown"},
		{"semantic2npm_validation", "semantic2npm_validation"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("x", 300)
	if got := SanitizeFilename(long); len(got) != 128 {
		t.Errorf("len(SanitizeFilename(long)) = %d, want 128", len(got))
	}
}
