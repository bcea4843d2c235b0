package engine

import (
	"encoding/binary"

	"github.com/wippyai/wasm-compiler/errors"
	"github.com/wippyai/wasm-compiler/wasm"
)

type loadOp struct {
	read func(b []byte) uint64
	size uint64
}

type storeOp struct {
	write func(b []byte, v uint64)
	size  uint64
}

var (
	loadOps  [256]*loadOp
	storeOps [256]*storeOp
)

func init() {
	le := binary.LittleEndian

	loadOps[wasm.OpI32Load] = &loadOp{size: 4, read: func(b []byte) uint64 { return uint64(le.Uint32(b)) }}
	loadOps[wasm.OpI64Load] = &loadOp{size: 8, read: le.Uint64}
	loadOps[wasm.OpF32Load] = loadOps[wasm.OpI32Load]
	loadOps[wasm.OpF64Load] = loadOps[wasm.OpI64Load]
	loadOps[wasm.OpI32Load8S] = &loadOp{size: 1, read: func(b []byte) uint64 { return uint64(uint32(int32(int8(b[0])))) }}
	loadOps[wasm.OpI32Load8U] = &loadOp{size: 1, read: func(b []byte) uint64 { return uint64(b[0]) }}
	loadOps[wasm.OpI32Load16S] = &loadOp{size: 2, read: func(b []byte) uint64 { return uint64(uint32(int32(int16(le.Uint16(b))))) }}
	loadOps[wasm.OpI32Load16U] = &loadOp{size: 2, read: func(b []byte) uint64 { return uint64(le.Uint16(b)) }}
	loadOps[wasm.OpI64Load8S] = &loadOp{size: 1, read: func(b []byte) uint64 { return uint64(int64(int8(b[0]))) }}
	loadOps[wasm.OpI64Load8U] = loadOps[wasm.OpI32Load8U]
	loadOps[wasm.OpI64Load16S] = &loadOp{size: 2, read: func(b []byte) uint64 { return uint64(int64(int16(le.Uint16(b)))) }}
	loadOps[wasm.OpI64Load16U] = loadOps[wasm.OpI32Load16U]
	loadOps[wasm.OpI64Load32S] = &loadOp{size: 4, read: func(b []byte) uint64 { return uint64(int64(int32(le.Uint32(b)))) }}
	loadOps[wasm.OpI64Load32U] = loadOps[wasm.OpI32Load]

	storeOps[wasm.OpI32Store] = &storeOp{size: 4, write: func(b []byte, v uint64) { le.PutUint32(b, uint32(v)) }}
	storeOps[wasm.OpI64Store] = &storeOp{size: 8, write: le.PutUint64}
	storeOps[wasm.OpF32Store] = storeOps[wasm.OpI32Store]
	storeOps[wasm.OpF64Store] = storeOps[wasm.OpI64Store]
	storeOps[wasm.OpI32Store8] = &storeOp{size: 1, write: func(b []byte, v uint64) { b[0] = byte(v) }}
	storeOps[wasm.OpI32Store16] = &storeOp{size: 2, write: func(b []byte, v uint64) { le.PutUint16(b, uint16(v)) }}
	storeOps[wasm.OpI64Store8] = storeOps[wasm.OpI32Store8]
	storeOps[wasm.OpI64Store16] = storeOps[wasm.OpI32Store16]
	storeOps[wasm.OpI64Store32] = storeOps[wasm.OpI32Store]
}

// effectiveAddress bounds-checks an access of size bytes and returns its
// start. The sum is computed in 64 bits so it cannot wrap.
func effectiveAddress(buf []byte, base uint64, offset, size uint64) uint64 {
	ea := uint64(uint32(base)) + offset
	if ea+size > uint64(len(buf)) {
		panic(trap(errors.TrapOutOfBoundsMemoryAccess))
	}
	return ea
}

func loadThunk(a int, offset uint64, op *loadOp) thunk {
	size, read := op.size, op.read
	return func(fr *frame) int {
		buf := fr.inst.Memory.buf
		ea := effectiveAddress(buf, fr.regs[a], offset, size)
		fr.regs[a] = read(buf[ea:])
		return -1
	}
}

func storeThunk(a, v int, offset uint64, op *storeOp) thunk {
	size, write := op.size, op.write
	return func(fr *frame) int {
		buf := fr.inst.Memory.buf
		ea := effectiveAddress(buf, fr.regs[a], offset, size)
		write(buf[ea:], fr.regs[v])
		return -1
	}
}

func memorySizeThunk(dst int) thunk {
	return func(fr *frame) int {
		fr.regs[dst] = uint64(fr.inst.Memory.Pages())
		return -1
	}
}

func memoryGrowThunk(a int) thunk {
	return func(fr *frame) int {
		prev, ok := fr.inst.Memory.Grow(uint32(fr.regs[a]))
		if !ok {
			fr.regs[a] = uint64(0xFFFFFFFF)
			return -1
		}
		fr.regs[a] = uint64(prev)
		return -1
	}
}

// bulkArgs reads the (dst, src/value, n) operand triple starting at slot a.
func bulkArgs(r []uint64, a int) (uint64, uint64, uint64) {
	return uint64(uint32(r[a])), uint64(uint32(r[a+1])), uint64(uint32(r[a+2]))
}

func memoryInitThunk(a int, dataIdx uint32) thunk {
	return func(fr *frame) int {
		dst, src, n := bulkArgs(fr.regs, a)
		buf := fr.inst.Memory.buf
		data := fr.inst.Data[dataIdx]
		if src+n > uint64(len(data)) || dst+n > uint64(len(buf)) {
			panic(trap(errors.TrapOutOfBoundsMemoryAccess))
		}
		copy(buf[dst:dst+n], data[src:src+n])
		return -1
	}
}

func dataDropThunk(dataIdx uint32) thunk {
	return func(fr *frame) int {
		fr.inst.Data[dataIdx] = nil
		return -1
	}
}

func memoryCopyThunk(a int) thunk {
	return func(fr *frame) int {
		dst, src, n := bulkArgs(fr.regs, a)
		buf := fr.inst.Memory.buf
		if src+n > uint64(len(buf)) || dst+n > uint64(len(buf)) {
			panic(trap(errors.TrapOutOfBoundsMemoryAccess))
		}
		copy(buf[dst:dst+n], buf[src:src+n])
		return -1
	}
}

func memoryFillThunk(a int) thunk {
	return func(fr *frame) int {
		dst, val, n := bulkArgs(fr.regs, a)
		buf := fr.inst.Memory.buf
		if dst+n > uint64(len(buf)) {
			panic(trap(errors.TrapOutOfBoundsMemoryAccess))
		}
		region := buf[dst : dst+n]
		for i := range region {
			region[i] = byte(val)
		}
		return -1
	}
}

func tableSizeThunk(dst int) thunk {
	return func(fr *frame) int {
		fr.regs[dst] = uint64(fr.inst.Table.Size())
		return -1
	}
}
