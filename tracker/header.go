package tracker

import (
	"encoding/binary"
	"unsafe"
)

// Every tracked block is laid out as [header | user bytes]. The header is
// written at allocation time and read back at release time, so the size and
// kind of a block are recovered without searching the registry.
//
//	[0:8)   requested size, little endian
//	[8:12)  kind
//	[12:16) magic
const headerSize = 16

const (
	magicLive  uint32 = 0x4d54524b // "MTRK"
	magicFreed uint32 = 0x45455246 // "FREE"
)

// AllocationHeader is the metadata prepended to every tracked block.
type AllocationHeader struct {
	RawSize int
	Kind    Kind
}

// blockLen returns the raw length backing a request of size bytes. Zero-size
// requests still get one byte so the returned slice has a distinct address.
func blockLen(size int) int {
	if size == 0 {
		return headerSize + 1
	}
	return headerSize + size
}

func writeHeader(raw []byte, h AllocationHeader) {
	binary.LittleEndian.PutUint64(raw[0:8], uint64(h.RawSize))
	binary.LittleEndian.PutUint32(raw[8:12], uint32(h.Kind))
	binary.LittleEndian.PutUint32(raw[12:16], magicLive)
}

// userSlice returns the caller-visible part of a raw block.
func userSlice(raw []byte, size int) []byte {
	return raw[headerSize : headerSize+size : len(raw)]
}

// headerOf returns the header bytes immediately preceding b. It reports false
// for slices without backing storage. b must be a live tracked block: for any
// other slice the header bytes lie outside b's allocation.
func headerOf(b []byte) ([]byte, bool) {
	if cap(b) == 0 {
		return nil, false
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	return unsafe.Slice((*byte)(unsafe.Add(p, -headerSize)), headerSize), true
}

func readHeader(hdr []byte) (AllocationHeader, uint32) {
	h := AllocationHeader{
		RawSize: int(binary.LittleEndian.Uint64(hdr[0:8])),
		Kind:    Kind(binary.LittleEndian.Uint32(hdr[8:12])),
	}
	return h, binary.LittleEndian.Uint32(hdr[12:16])
}

func markFreed(hdr []byte) {
	binary.LittleEndian.PutUint32(hdr[12:16], magicFreed)
}

// rawOf rebuilds the full raw block from its header bytes.
func rawOf(hdr []byte, size int) []byte {
	return unsafe.Slice(unsafe.SliceData(hdr), blockLen(size))
}

// addressOf returns the address the tracker records for a user slice.
func addressOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
