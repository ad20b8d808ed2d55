package npz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// MaxDataBytes caps the array payload ReadNPY allocates.
const MaxDataBytes = 512 << 20

var ErrTooLarge = errors.New("npy array too large")

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// Array is an n-dimensional float32 array in C order.
type Array struct {
	Shape []int
	Data  []float32
}

func (a Array) NDim() int {
	return len(a.Shape)
}

func (a Array) size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// WriteNPY encodes a as a version 1.0 .npy stream with dtype <f4.
func WriteNPY(w io.Writer, a Array) error {
	if a.size() != len(a.Data) {
		return fmt.Errorf("shape %v does not match %d values", a.Shape, len(a.Data))
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': %s, }", shapeString(a.Shape))
	// magic(6) + version(2) + header_len(2) + header + '\n' must be a multiple of 64
	total := 10 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"

	buf := bytes.NewBuffer(make([]byte, 0, 10+len(header)+4*len(a.Data)))
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)

	var word [4]byte
	for _, v := range a.Data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		buf.Write(word[:])
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadNPY decodes a little-endian float32 or float64 C-order .npy stream. limit bounds
// the whole stream in bytes; limit <= 0 means MaxDataBytes.
func ReadNPY(r io.Reader, limit int64) (Array, error) {
	if limit <= 0 || limit > MaxDataBytes {
		limit = MaxDataBytes
	}
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Array{}, fmt.Errorf("read npy magic: %w", err)
	}
	if !bytes.Equal(prefix[:6], npyMagic) {
		return Array{}, errors.New("not an npy stream")
	}

	var headerLen int
	switch prefix[6] {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Array{}, fmt.Errorf("read npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Array{}, fmt.Errorf("read npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return Array{}, fmt.Errorf("unsupported npy version %d.%d", prefix[6], prefix[7])
	}

	if int64(headerLen) > limit {
		return Array{}, fmt.Errorf("%w: header of %d bytes", ErrTooLarge, headerLen)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Array{}, fmt.Errorf("read npy header: %w", err)
	}

	descr, shape, err := parseHeader(string(header))
	if err != nil {
		return Array{}, err
	}

	var width int
	switch descr {
	case "<f4":
		width = 4
	case "<f8":
		width = 8
	default:
		return Array{}, fmt.Errorf("unsupported dtype %q", descr)
	}
	n, err := elementCount(shape)
	if err != nil {
		return Array{}, err
	}
	if budget := limit - int64(10+headerLen); budget < 0 || int64(n) > budget/int64(width) {
		return Array{}, fmt.Errorf("%w: shape %v exceeds %d bytes", ErrTooLarge, shape, limit)
	}

	a := Array{Shape: shape}
	switch width {
	case 4:
		raw := make([]byte, 4*n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return Array{}, fmt.Errorf("read npy data: %w", err)
		}
		a.Data = make([]float32, n)
		for i := range a.Data {
			a.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	default:
		raw := make([]byte, 8*n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return Array{}, fmt.Errorf("read npy data: %w", err)
		}
		a.Data = make([]float32, n)
		for i := range a.Data {
			a.Data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:])))
		}
	}
	return a, nil
}

// elementCount multiplies the dimensions, rejecting negative ones and overflow.
func elementCount(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("npy header: negative dimension in shape %v", shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrTooLarge, shape)
		}
		n *= d
	}
	return n, nil
}

func parseHeader(h string) (string, []int, error) {
	m := descrRe.FindStringSubmatch(h)
	if m == nil {
		return "", nil, errors.New("npy header: missing descr")
	}
	descr := m[1]

	if f := fortranRe.FindStringSubmatch(h); f != nil && f[1] == "True" {
		return "", nil, errors.New("npy header: fortran order not supported")
	}

	s := shapeRe.FindStringSubmatch(h)
	if s == nil {
		return "", nil, errors.New("npy header: missing shape")
	}
	var shape []int
	for _, part := range strings.Split(s[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return "", nil, fmt.Errorf("npy header: bad shape %q", s[1])
		}
		shape = append(shape, d)
	}
	return descr, shape, nil
}

func shapeString(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
