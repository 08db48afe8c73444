package tracker

import (
	"fmt"
	"math"
	"reflect"
	"runtime"
	"unsafe"

	trackererrors "github.com/23skdu/memtracer/internal/errors"
)

// Alloc returns a zeroed *T backed by a tracked single-object block, enriched
// with the caller's file, line and the name of T. It panics when the tracker
// cannot allocate, and when T holds pointers: tracked blocks are plain bytes
// the garbage collector does not scan.
func Alloc[T any](bt BlockTracker) *T {
	typ := reflect.TypeFor[T]()
	mustBePointerFree(typ, "alloc")

	size := int(typ.Size())
	b, h, err := bt.Register(size, KindSingle)
	if err != nil {
		panic(err)
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	mustBeAligned(bt, b, KindSingle, typ)

	file, line := caller()
	bt.EnrichHandle(h, file, line, typ.String(), size)
	return (*T)(p)
}

// AllocSlice returns a zeroed []T of length n backed by a tracked array block.
// The tally records the whole block under "[]T".
func AllocSlice[T any](bt BlockTracker, n int) []T {
	typ := reflect.TypeFor[T]()
	mustBePointerFree(typ, "alloc_slice")
	if n < 0 {
		panic(trackererrors.NewExhaustionError("alloc_slice", fmt.Sprintf("negative length %d", n)))
	}
	elem := int(typ.Size())
	if elem > 0 && n > math.MaxInt/elem {
		panic(trackererrors.NewExhaustionError("alloc_slice", fmt.Sprintf("%d elements of %s overflow the address space", n, typ)).
			WithContext("length", n))
	}

	size := elem * n
	b, h, err := bt.Register(size, KindArray)
	if err != nil {
		panic(err)
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	mustBeAligned(bt, b, KindArray, typ)

	file, line := caller()
	bt.EnrichHandle(h, file, line, "[]"+typ.String(), size)
	return unsafe.Slice((*T)(p), n)
}

// Delete releases a value obtained from Alloc. Deleting nil is a no-op. It
// panics with the consistency error when p is not a live single-object block.
func Delete[T any](bt BlockTracker, p *T) {
	if p == nil {
		return
	}
	if err := bt.Release(unsafe.Slice((*byte)(unsafe.Pointer(p)), 1), KindSingle); err != nil {
		panic(err)
	}
}

// DeleteSlice releases a slice obtained from AllocSlice, or any reslice of it
// sharing its first element. Deleting nil is a no-op.
func DeleteSlice[T any](bt BlockTracker, s []T) {
	p := unsafe.SliceData(s)
	if p == nil {
		return
	}
	if err := bt.Release(unsafe.Slice((*byte)(unsafe.Pointer(p)), 1), KindArray); err != nil {
		panic(err)
	}
}

func caller() (string, int) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return Unknown, 0
	}
	return file, line
}

func mustBePointerFree(typ reflect.Type, op string) {
	if !pointerFree(typ) {
		panic(trackererrors.NewTypeResolutionError(op, "type holds pointers: "+typ.String()))
	}
}

// mustBeAligned releases b before panicking so a rejected block leaves no record.
func mustBeAligned(bt BlockTracker, b []byte, kind Kind, typ reflect.Type) {
	p := unsafe.Pointer(unsafe.SliceData(b))
	if uintptr(p)%uintptr(typ.Align()) == 0 {
		return
	}
	_ = bt.Release(b, kind)
	panic(trackererrors.NewConsistencyError("align", fmt.Sprintf("block %p is not aligned for %s", p, typ)))
}

func pointerFree(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return typ.Len() == 0 || pointerFree(typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if !pointerFree(typ.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
