package engine

import (
	"encoding/binary"
	"fmt"

	wasmcompiler "github.com/wippyai/wasm-compiler"
	"github.com/wippyai/wasm-compiler/wasm"
)

// Memory is a linear memory owned by one instance.
// It is not safe for concurrent use.
type Memory struct {
	buf      []byte
	maxPages uint32
}

// NewMemory allocates minPages zeroed pages that may grow up to maxPages.
func NewMemory(minPages, maxPages uint32) *Memory {
	if maxPages > wasm.MemoryMaxPages {
		maxPages = wasm.MemoryMaxPages
	}
	return &Memory{
		buf:      make([]byte, uint64(minPages)*wasm.PageSize),
		maxPages: maxPages,
	}
}

// Bytes returns the current backing slice. It is invalidated by Grow.
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return uint32(uint64(len(m.buf)) / wasm.PageSize)
}

// MaxPages returns the page limit.
func (m *Memory) MaxPages() uint32 {
	return m.maxPages
}

// Size returns the current size in bytes. A full 4GiB memory reports
// 0xFFFFFFFF.
func (m *Memory) Size() uint32 {
	if uint64(len(m.buf)) > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(len(m.buf))
}

// Grow adds delta pages and returns the previous page count.
func (m *Memory) Grow(delta uint32) (uint32, bool) {
	prev := m.Pages()
	if uint64(prev)+uint64(delta) > uint64(m.maxPages) {
		return prev, false
	}
	if delta == 0 {
		return prev, true
	}
	grown := make([]byte, (uint64(prev)+uint64(delta))*wasm.PageSize)
	copy(grown, m.buf)
	m.buf = grown
	return prev, true
}

func (m *Memory) hasSize(offset uint32, n uint64) bool {
	return uint64(offset)+n <= uint64(len(m.buf))
}

// Read returns a view of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	if !m.hasSize(offset, uint64(length)) {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	end := uint64(offset) + uint64(length)
	return m.buf[offset:end:end], nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.hasSize(offset, uint64(len(data))) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	copy(m.buf[offset:], data)
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	if !m.hasSize(offset, 1) {
		return 0, fmt.Errorf("read out of bounds")
	}
	return m.buf[offset], nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	if !m.hasSize(offset, 2) {
		return 0, fmt.Errorf("read out of bounds")
	}
	return binary.LittleEndian.Uint16(m.buf[offset:]), nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if !m.hasSize(offset, 4) {
		return 0, fmt.Errorf("read out of bounds")
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	if !m.hasSize(offset, 8) {
		return 0, fmt.Errorf("read out of bounds")
	}
	return binary.LittleEndian.Uint64(m.buf[offset:]), nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	return m.Write(offset, []byte{value})
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if !m.hasSize(offset, 2) {
		return fmt.Errorf("write out of bounds")
	}
	binary.LittleEndian.PutUint16(m.buf[offset:], value)
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.hasSize(offset, 4) {
		return fmt.Errorf("write out of bounds")
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], value)
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.hasSize(offset, 8) {
		return fmt.Errorf("write out of bounds")
	}
	binary.LittleEndian.PutUint64(m.buf[offset:], value)
	return nil
}

// Compile-time check that Memory implements the host memory interfaces
var (
	_ wasmcompiler.Memory       = (*Memory)(nil)
	_ wasmcompiler.MemorySizer  = (*Memory)(nil)
	_ wasmcompiler.MemoryGrower = (*Memory)(nil)
)
