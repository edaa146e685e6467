package wasmbridge

// Memory represents bounds-checked access to guest linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of guest linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// MemoryBuffer exposes the raw backing buffer of guest linear memory.
// The slice aliases live guest memory: it is valid only until the memory
// grows, which is exactly the window in which fixed mappings are valid too.
type MemoryBuffer interface {
	Buffer() ([]byte, error)
}

// LinearMemory is what the fixed mapper needs from a guest: typed access,
// the current size, and the backing buffer for base address derivation.
type LinearMemory interface {
	Memory
	MemorySizer
	MemoryBuffer
}

// Allocator allocates memory inside guest linear memory
type Allocator interface {
	Alloc(size uint32) (uint32, error)
}
