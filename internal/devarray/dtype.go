// Package devarray normalizes foreign device arrays into contiguous views.
//
// Two zero-copy exchange protocols are understood, tried in this order:
//
//  1. the CUDA array interface (CUDAArrayInterfacer), and
//  2. DLPack (DLPackExporter).
//
// A source that is not C-contiguous is gathered into a scratch buffer
// taken from a gpu.BufferPool before it is exposed as a View.
package devarray

import (
	"fmt"
	"strconv"
	"strings"
)

// DType is an element type described by kind and width, following the
// array-interface typestr conventions ('f', 'i', 'u', 'b', 'c')
type DType struct {
	Kind byte
	Size int // bytes per element
}

var (
	Bool       = DType{'b', 1}
	Int8       = DType{'i', 1}
	Int16      = DType{'i', 2}
	Int32      = DType{'i', 4}
	Int64      = DType{'i', 8}
	Uint8      = DType{'u', 1}
	Uint16     = DType{'u', 2}
	Uint32     = DType{'u', 4}
	Uint64     = DType{'u', 8}
	Float16    = DType{'f', 2}
	Float32    = DType{'f', 4}
	Float64    = DType{'f', 8}
	Complex64  = DType{'c', 8}
	Complex128 = DType{'c', 16}
)

var kindNames = map[byte]string{
	'b': "bool",
	'i': "int",
	'u': "uint",
	'f': "float",
	'c': "complex",
}

func (d DType) String() string {
	name, ok := kindNames[d.Kind]
	if !ok {
		return fmt.Sprintf("dtype(%q,%d)", d.Kind, d.Size)
	}
	if d.Kind == 'b' && d.Size == 1 {
		return name
	}
	return name + strconv.Itoa(d.Size*8)
}

// Valid reports whether d is a known kind with a positive width. Booleans
// are always one byte wide.
func (d DType) Valid() bool {
	_, ok := kindNames[d.Kind]
	if d.Kind == 'b' {
		return d.Size == 1
	}
	return ok && d.Size > 0
}

// TypeStr renders d as a little-endian array-interface typestr, e.g. "<f4"
func (d DType) TypeStr() string {
	if d.Size == 1 {
		return "|" + string(d.Kind) + "1"
	}
	return "<" + string(d.Kind) + strconv.Itoa(d.Size)
}

// ParseTypeStr parses an array-interface typestr such as "<f4" or "|u1".
// Big-endian element types are rejected because device copies are bytewise.
func ParseTypeStr(s string) (DType, error) {
	if len(s) < 3 {
		return DType{}, fmt.Errorf("malformed typestr %q", s)
	}
	switch s[0] {
	case '<', '|', '=':
	case '>':
		return DType{}, fmt.Errorf("big-endian typestr %q is not supported", s)
	default:
		return DType{}, fmt.Errorf("malformed typestr %q", s)
	}
	size, err := strconv.Atoi(s[2:])
	if err != nil || size <= 0 {
		return DType{}, fmt.Errorf("malformed typestr %q", s)
	}
	d := DType{Kind: s[1], Size: size}
	if !d.Valid() {
		return DType{}, fmt.Errorf("unsupported typestr %q", s)
	}
	return d, nil
}

// ParseDType parses a dtype name such as "float32" or "uint8"
func ParseDType(name string) (DType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "bool" {
		return Bool, nil
	}
	for kind, prefix := range kindNames {
		if kind == 'b' || !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		bits, err := strconv.Atoi(rest)
		if err != nil || bits%8 != 0 || bits <= 0 {
			return DType{}, fmt.Errorf("unknown dtype %q", name)
		}
		return DType{Kind: kind, Size: bits / 8}, nil
	}
	return DType{}, fmt.Errorf("unknown dtype %q", name)
}
