package engine

// Hand-assembled WASM test guest. Building the ~400 bytes here keeps the
// tests free of checked-in binaries and toolchain dependencies; the
// module implements the full bridge ABI over a bump allocator plus peek
// and poke helpers for poking at mapped regions.
//
// Memory map of the test guest:
//
//	0x10  "init" message printed on init
//	0x20  "k", the key do_lookup probes
//	0x30  cell: read-only range offset   (stored by create/update_context)
//	0x34  cell: read-only range length
//	0x38  cell: read-write range offset
//	0x3C  cell: read-write range length
//	0x40  cell: lookup capacity, in and out
//	0x50  lookup value buffer
//	0x1000 bump allocator heap base
//
// Lifecycle marks, relative to the stored read-write offset:
//
//	+0 seed from init   +4 tick counter   +8 0x600D600D from modify_grid

const (
	testMsgAddr  = 0x10
	testKeyAddr  = 0x20
	testCellRO   = 0x30
	testCellRW   = 0x38
	testCellCap  = 0x40
	testValAddr  = 0x50
	testHeapBase = 0x1000

	testMinPages  = 16
	testMaxPages  = 64
	testGrowPages = 16

	testModifyMark = 0x600D600D
)

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, uleb(uint32(len(payload))), payload)
}

func vec(items ...[]byte) []byte {
	return cat(append([][]byte{uleb(uint32(len(items)))}, items...)...)
}

func wname(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

const i32t = 0x7F

func functype(params, results int) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(params))...)
	for i := 0; i < params; i++ {
		out = append(out, i32t)
	}
	out = append(out, uleb(uint32(results))...)
	for i := 0; i < results; i++ {
		out = append(out, i32t)
	}
	return out
}

// instruction helpers
func iconst(v int32) []byte { return append([]byte{0x41}, sleb(v)...) }
func lget(i uint32) []byte  { return append([]byte{0x20}, uleb(i)...) }
func ltee(i uint32) []byte  { return append([]byte{0x22}, uleb(i)...) }
func gget(i uint32) []byte  { return append([]byte{0x23}, uleb(i)...) }
func gset(i uint32) []byte  { return append([]byte{0x24}, uleb(i)...) }
func call(f uint32) []byte  { return append([]byte{0x10}, uleb(f)...) }

var (
	opAdd   = []byte{0x6A}
	opAnd   = []byte{0x71}
	opLoad  = []byte{0x28, 0x02, 0x00}
	opStore = []byte{0x36, 0x02, 0x00}
	opDrop  = []byte{0x1A}
	opGrow  = []byte{0x40, 0x00}
)

// body wraps instructions into a code entry with n extra i32 locals.
func body(locals uint32, code []byte) []byte {
	var b []byte
	if locals == 0 {
		b = uleb(0)
	} else {
		b = cat(uleb(1), uleb(locals), []byte{i32t})
	}
	b = cat(b, code, []byte{0x0B})
	return cat(uleb(uint32(len(b))), b)
}

func dataSegment(addr int32, data []byte) []byte {
	return cat([]byte{0x00}, iconst(addr), []byte{0x0B}, uleb(uint32(len(data))), data)
}

// demoGuest assembles the test guest. omit drops named exports, which
// lets tests simulate guests missing parts of the ABI.
func demoGuest(omit ...string) []byte {
	omitted := make(map[string]bool, len(omit))
	for _, n := range omit {
		omitted[n] = true
	}

	// t0 (i32,i32)->()  t1 (i32 x4)->i32  t2 (i32)->i32
	// t3 (i32 x5)->i32  t4 (i32)->()
	typeSec := section(1, vec(
		functype(2, 0),
		functype(4, 1),
		functype(1, 1),
		functype(5, 1),
		functype(1, 0),
	))

	importSec := section(2, vec(
		cat(wname("env"), wname("print"), []byte{0x00}, uleb(0)),
		cat(wname("env"), wname("lookup"), []byte{0x00}, uleb(1)),
	))

	// local functions, in index order starting at 2
	funcSec := section(3, vec(
		uleb(2), // malloc_
		uleb(1), // create_context
		uleb(3), // update_context
		uleb(0), // init
		uleb(4), // tick
		uleb(4), // modify_grid
		uleb(4), // large_alloc
		uleb(2), // do_lookup
		uleb(2), // peek
		uleb(0), // poke
	))

	memSec := section(5, vec(cat([]byte{0x01}, uleb(testMinPages), uleb(testMaxPages))))

	globalSec := section(6, vec(cat([]byte{i32t, 0x01}, iconst(testHeapBase), []byte{0x0B})))

	exports := []struct {
		name string
		kind byte
		idx  uint32
	}{
		{"memory", 0x02, 0},
		{exportMalloc, 0x00, 2},
		{exportCreateContext, 0x00, 3},
		{exportUpdateContext, 0x00, 4},
		{exportInit, 0x00, 5},
		{exportTick, 0x00, 6},
		{exportModifyGrid, 0x00, 7},
		{exportLargeAlloc, 0x00, 8},
		{"do_lookup", 0x00, 9},
		{"peek", 0x00, 10},
		{"poke", 0x00, 11},
	}
	var exportEntries [][]byte
	for _, e := range exports {
		if omitted[e.name] {
			continue
		}
		exportEntries = append(exportEntries, cat(wname(e.name), []byte{e.kind}, uleb(e.idx)))
	}
	exportSec := section(7, vec(exportEntries...))

	// store4 writes the u32 at the top of the stack to a fixed cell.
	store4 := func(cell int32, value []byte) []byte {
		return cat(iconst(cell), value, opStore)
	}

	codeSec := section(10, vec(
		// malloc_(size): res = (heap+7)&^7; heap = res+size; return res
		body(1, cat(
			gget(0), iconst(7), opAdd, iconst(-8), opAnd, ltee(1),
			lget(0), opAdd, gset(0),
			lget(1),
		)),
		// create_context(roOff, roLen, rwOff, rwLen) -> 1
		body(0, cat(
			store4(testCellRO, lget(0)),
			store4(testCellRO+4, lget(1)),
			store4(testCellRW, lget(2)),
			store4(testCellRW+4, lget(3)),
			iconst(1),
		)),
		// update_context(handle, roOff, roLen, rwOff, rwLen) -> 0
		body(0, cat(
			store4(testCellRO, lget(1)),
			store4(testCellRO+4, lget(2)),
			store4(testCellRW, lget(3)),
			store4(testCellRW+4, lget(4)),
			iconst(0),
		)),
		// init(handle, seed): print "init"; [rw+0] = seed
		body(0, cat(
			iconst(4), iconst(testMsgAddr), call(0),
			iconst(testCellRW), opLoad, lget(1), opStore,
		)),
		// tick(handle): [rw+4]++
		body(1, cat(
			iconst(testCellRW), opLoad, iconst(4), opAdd, ltee(1),
			lget(1), opLoad, iconst(1), opAdd, opStore,
		)),
		// modify_grid(handle): [rw+8] = mark
		body(0, cat(
			iconst(testCellRW), opLoad, iconst(8), opAdd,
			iconst(testModifyMark), opStore,
		)),
		// large_alloc(handle): memory.grow(testGrowPages)
		body(0, cat(
			iconst(testGrowPages), opGrow, opDrop,
		)),
		// do_lookup(capacity) -> status: [cap]=capacity; lookup(1, key, cap, val)
		body(0, cat(
			store4(testCellCap, lget(0)),
			iconst(1), iconst(testKeyAddr), iconst(testCellCap), iconst(testValAddr),
			call(1),
		)),
		// peek(addr) -> u32 at addr
		body(0, cat(lget(0), opLoad)),
		// poke(addr, val)
		body(0, cat(lget(0), lget(1), opStore)),
	))

	dataSec := section(11, vec(
		dataSegment(testMsgAddr, []byte("init")),
		dataSegment(testKeyAddr, []byte("k")),
	))

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00},
		typeSec, importSec, funcSec, memSec, globalSec, exportSec, codeSec, dataSec,
	)
}
