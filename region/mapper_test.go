package region

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"

	bridgeerr "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/shm"
)

// guestArena fakes a guest's linear memory over a real anonymous mapping,
// so fixed mappings land in pages this test owns. Alloc is a bump pointer.
type guestArena struct {
	buf  []byte
	next uint32
}

func newGuestArena(t *testing.T, pages int) *guestArena {
	t.Helper()
	size := pages * os.Getpagesize()
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("reserve guest arena: %v", err)
	}
	t.Cleanup(func() { unix.Munmap(buf) })
	// Start past zero so offset 0 keeps meaning "allocation failed".
	return &guestArena{buf: buf, next: 64}
}

func (g *guestArena) Buffer() ([]byte, error) { return g.buf, nil }
func (g *guestArena) Size() uint32            { return uint32(len(g.buf)) }

func (g *guestArena) Read(off, n uint32) ([]byte, error) {
	if uint64(off)+uint64(n) > uint64(len(g.buf)) {
		return nil, bridgeerr.OutOfBounds(bridgeerr.PhaseEngine, uint64(off), uint64(n), uint64(len(g.buf)))
	}
	return g.buf[off : off+n], nil
}

func (g *guestArena) Write(off uint32, data []byte) error {
	if uint64(off)+uint64(len(data)) > uint64(len(g.buf)) {
		return bridgeerr.OutOfBounds(bridgeerr.PhaseEngine, uint64(off), uint64(len(data)), uint64(len(g.buf)))
	}
	copy(g.buf[off:], data)
	return nil
}

func (g *guestArena) ReadU32(off uint32) (uint32, error) {
	b, err := g.Read(off, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (g *guestArena) WriteU32(off, val uint32) error {
	return g.Write(off, []byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)})
}

func (g *guestArena) Alloc(size uint32) (uint32, error) {
	off := g.next
	if uint64(off)+uint64(size) > uint64(len(g.buf)) {
		return 0, nil // out of guest memory, same as a failing guest allocator
	}
	g.next += size
	return off, nil
}

func makeObjects(t *testing.T, sizes ...int64) []*shm.Object {
	t.Helper()
	objs := make([]*shm.Object, len(sizes))
	for i, s := range sizes {
		o, err := shm.CreateAnonymous("bridge-mapper", s)
		if err != nil {
			t.Fatalf("CreateAnonymous: %v", err)
		}
		objs[i] = o
	}
	return objs
}

func TestMapperMapsAligned(t *testing.T) {
	page := os.Getpagesize()
	guest := newGuestArena(t, 64)
	objs := makeObjects(t, 6000, 2500)

	// Host pre-fills the read-only object before the guest maps it.
	hostView, err := objs[0].Map(shm.ReadWrite)
	if err != nil {
		t.Fatalf("host Map: %v", err)
	}
	defer shm.Unmap(hostView)
	copy(hostView, []byte("packed index bytes"))

	m := NewMapper(guest, guest)
	set, err := m.Map(objs, []Spec{
		{Name: "grid", Size: 6000, Access: ReadOnly},
		{Name: "actors", Size: 2500, Access: ReadWrite},
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer set.Close()

	grid, _ := set.Region("grid")
	actors, _ := set.Region("actors")

	for _, r := range []*Region{grid, actors} {
		if r.GuestOffset()%uint32(page) != 0 {
			t.Errorf("region %q at guest offset %d, not page aligned", r.Name(), r.GuestOffset())
		}
	}
	if actors.GuestOffset() <= grid.GuestOffset() {
		t.Error("regions out of order in the arena")
	}

	// The guest sees what the host wrote, zero copies involved.
	if string(grid.Bytes()[:18]) != "packed index bytes" {
		t.Fatalf("guest view = %q", grid.Bytes()[:18])
	}
	// Host-side writes keep flowing through after mapping.
	hostView[0] = 'P'
	if grid.Bytes()[0] != 'P' {
		t.Fatal("late host write not visible to guest")
	}

	// Guest writes to the rw region are visible through the guest buffer.
	actors.Bytes()[0] = 0x77
	buf, _ := guest.Buffer()
	if buf[actors.GuestOffset()] != 0x77 {
		t.Fatal("rw region does not alias guest memory")
	}
}

func TestMapperArenaDoesNotFit(t *testing.T) {
	guest := newGuestArena(t, 2)
	objs := makeObjects(t, int64(16*os.Getpagesize()))

	_, err := NewMapper(guest, guest).Map(objs, []Spec{{Name: "big", Access: ReadWrite}})
	if err == nil {
		t.Fatal("oversized arena should fail")
	}
	for _, o := range objs {
		o.Close()
	}
}

func TestMapperSpecLargerThanObject(t *testing.T) {
	guest := newGuestArena(t, 8)
	objs := makeObjects(t, 4096)
	defer objs[0].Close()

	_, err := NewMapper(guest, guest).Map(objs, []Spec{
		{Name: "grid", Size: 8192, Access: ReadOnly},
	})
	if !bridgeerr.IsKind(err, bridgeerr.KindInvalidInput) {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestMapperPairsObjectsAndSpecs(t *testing.T) {
	guest := newGuestArena(t, 8)
	objs := makeObjects(t, 4096)
	defer objs[0].Close()

	if _, err := NewMapper(guest, guest).Map(objs, nil); err == nil {
		t.Fatal("mismatched objects/specs should fail")
	}
}

func TestMapperCloseRestoresArena(t *testing.T) {
	guest := newGuestArena(t, 16)
	objs := makeObjects(t, 4096)

	set, err := NewMapper(guest, guest).Map(objs, []Spec{
		{Name: "scratch", Access: ReadWrite},
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	r, _ := set.Region("scratch")
	off := r.GuestOffset()
	r.Bytes()[0] = 0xee

	if err := set.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The arena pages are anonymous again: zeroed and writable.
	buf, _ := guest.Buffer()
	if buf[off] != 0 {
		t.Fatalf("arena page not restored, read %#x", buf[off])
	}
	buf[off] = 1
}
