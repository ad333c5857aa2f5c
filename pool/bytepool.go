// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Reusable append buffers for outbound protocol data.

package pool

// BytePool hands out empty byte slices with at least size capacity.
// Buffers that grew beyond maxCap are left to the GC on Put.
type BytePool struct {
	sp     *SyncPool[*[]byte]
	size   int
	maxCap int
}

// NewBytePool creates a pool of size-capacity buffers, retaining at most
// maxCap bytes per returned buffer.
func NewBytePool(size, maxCap int) *BytePool {
	if maxCap < size {
		maxCap = size
	}
	return &BytePool{
		sp: NewSyncPool(func() *[]byte {
			b := make([]byte, 0, size)
			return &b
		}),
		size:   size,
		maxCap: maxCap,
	}
}

// Get returns a zero-length buffer.
func (b *BytePool) Get() []byte {
	return (*b.sp.Get())[:0]
}

// Put returns buf to the pool. buf must not be used afterwards.
func (b *BytePool) Put(buf []byte) {
	if cap(buf) < b.size || cap(buf) > b.maxCap {
		return
	}
	buf = buf[:0]
	b.sp.Put(&buf)
}

// Default is the shared pool used for frames and response heads.
var Default = NewBytePool(512, 64<<10)
