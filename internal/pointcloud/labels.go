package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteLabels writes one integer label per line.
func WriteLabels(w io.Writer, labels []int) error {
	bw := bufio.NewWriter(w)
	for _, l := range labels {
		bw.WriteString(strconv.Itoa(l))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadLabels parses one integer label per line. Blank lines are skipped;
// a trailing fractional part such as "3.0" is rejected.
func ReadLabels(r io.Reader) ([]int, error) {
	sc := bufio.NewScanner(r)
	var labels []int
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("labels line %d: %w", line, err)
		}
		labels = append(labels, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, nil
}
