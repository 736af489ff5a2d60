package pointcloud

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrUnsupportedPCD is returned for PCD files this codec does not read.
var ErrUnsupportedPCD = errors.New("unsupported pcd")

// maxPreallocPoints bounds the capacity reserved from the POINTS header.
const maxPreallocPoints = 1 << 20

// WritePCD writes points (and colours when non-nil) as an ASCII PCD v0.7
// file. Colours are packed into a single unsigned rgb field.
func WritePCD(w io.Writer, points []Point, colors [][3]uint8) error {
	if colors != nil && len(colors) != len(points) {
		return fmt.Errorf("pcd: %d colours for %d points", len(colors), len(points))
	}

	bw := bufio.NewWriter(w)
	fields, size, typ, count := "x y z", "4 4 4", "F F F", "1 1 1"
	if colors != nil {
		fields += " rgb"
		size += " 4"
		typ += " U"
		count += " 1"
	}
	fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\n")
	fmt.Fprintf(bw, "VERSION 0.7\nFIELDS %s\nSIZE %s\nTYPE %s\nCOUNT %s\n", fields, size, typ, count)
	fmt.Fprintf(bw, "WIDTH %d\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS %d\nDATA ascii\n", len(points), len(points))

	for i, p := range points {
		fmt.Fprintf(bw, "%.6f %.6f %.6f", p.X, p.Y, p.Z)
		if colors != nil {
			c := colors[i]
			fmt.Fprintf(bw, " %d", uint32(c[0])<<16|uint32(c[1])<<8|uint32(c[2]))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

type pcdHeader struct {
	fields []string
	types  []string
	points int
	data   string
}

// ReadPCD parses an ASCII PCD file with x, y, z and an optional rgb field
// (packed as U or as the float bit pattern PCL writes). Other fields are
// skipped.
func ReadPCD(r io.Reader) (*Cloud, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var h pcdHeader
	h.points = -1
	for h.data == "" && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		switch strings.ToUpper(parts[0]) {
		case "FIELDS":
			h.fields = parts[1:]
		case "TYPE":
			h.types = parts[1:]
		case "POINTS":
			if len(parts) != 2 {
				return nil, fmt.Errorf("pcd: malformed POINTS line %q", line)
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("pcd: invalid POINTS %q", parts[1])
			}
			h.points = n
		case "DATA":
			if len(parts) != 2 {
				return nil, fmt.Errorf("pcd: malformed DATA line %q", line)
			}
			h.data = parts[1]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("pcd: read header: %w", err)
	}
	if h.data != "ascii" {
		return nil, fmt.Errorf("%w: DATA %q (only ascii is supported)", ErrUnsupportedPCD, h.data)
	}
	if h.points < 0 {
		return nil, fmt.Errorf("pcd: missing POINTS header")
	}

	ix, iy, iz, irgb := -1, -1, -1, -1
	for i, f := range h.fields {
		switch f {
		case "x":
			ix = i
		case "y":
			iy = i
		case "z":
			iz = i
		case "rgb", "rgba":
			irgb = i
		}
	}
	if ix < 0 || iy < 0 || iz < 0 {
		return nil, fmt.Errorf("%w: fields %v lack x, y, z", ErrUnsupportedPCD, h.fields)
	}
	rgbIsFloat := irgb >= 0 && irgb < len(h.types) && strings.EqualFold(h.types[irgb], "F")

	// POINTS is untrusted; append grows past the cap when the file is larger.
	prealloc := min(h.points, maxPreallocPoints)
	cloud := &Cloud{Points: make([]Point, 0, prealloc)}
	if irgb >= 0 {
		cloud.Colors = make([][3]uint8, 0, prealloc)
	}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		vals := strings.Fields(line)
		if len(vals) < len(h.fields) {
			return nil, fmt.Errorf("pcd: point %d has %d values, want %d", len(cloud.Points), len(vals), len(h.fields))
		}
		var p Point
		var err error
		if p.X, err = strconv.ParseFloat(vals[ix], 64); err != nil {
			return nil, fmt.Errorf("pcd: point %d x: %w", len(cloud.Points), err)
		}
		if p.Y, err = strconv.ParseFloat(vals[iy], 64); err != nil {
			return nil, fmt.Errorf("pcd: point %d y: %w", len(cloud.Points), err)
		}
		if p.Z, err = strconv.ParseFloat(vals[iz], 64); err != nil {
			return nil, fmt.Errorf("pcd: point %d z: %w", len(cloud.Points), err)
		}
		cloud.Points = append(cloud.Points, p)

		if irgb >= 0 {
			packed, err := parsePackedRGB(vals[irgb], rgbIsFloat)
			if err != nil {
				return nil, fmt.Errorf("pcd: point %d rgb: %w", len(cloud.Points)-1, err)
			}
			cloud.Colors = append(cloud.Colors, [3]uint8{uint8(packed >> 16), uint8(packed >> 8), uint8(packed)})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("pcd: read data: %w", err)
	}
	if len(cloud.Points) != h.points {
		return nil, fmt.Errorf("pcd: header declares %d points, found %d", h.points, len(cloud.Points))
	}
	return cloud, nil
}

func parsePackedRGB(s string, isFloat bool) (uint32, error) {
	if isFloat {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, err
		}
		return math.Float32bits(float32(f)), nil
	}
	u, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}
