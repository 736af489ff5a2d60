package pointcloud

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteLabels(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLabels(&buf, []int{0, 5, 12}); err != nil {
		t.Fatalf("WriteLabels: %v", err)
	}
	if got, want := buf.String(), "0\n5\n12\n"; got != want {
		t.Errorf("WriteLabels = %q, want %q", got, want)
	}
}

func TestReadLabels(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{"simple", "1\n2\n3\n", []int{1, 2, 3}, false},
		{"no trailing newline", "4\n0", []int{4, 0}, false},
		{"blank lines and spaces", "\n 7 \n\n8\n", []int{7, 8}, false},
		{"empty", "", nil, false},
		{"float", "1\n2.0\n", nil, true},
		{"garbage", "x\n", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadLabels(strings.NewReader(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadLabels err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadLabels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
