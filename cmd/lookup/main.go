// Command lookup benchmarks key resolution over a shared table two ways:
// direct reads of the packed index against host-mediated query calls. The
// native mode measures the bridge's own Reader and Client; -wasm hands the
// same table to a WASM module and times its exported benchmark entry
// points instead.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/index"
	"github.com/wippyai/wasm-bridge/query"
	"github.com/wippyai/wasm-bridge/region"
	"github.com/wippyai/wasm-bridge/shm"
)

// Key and value lengths are drawn from inclusive ranges. Values straddle
// the client's default capacity, so the external path exercises both the
// one-call resolve and the report-and-retry resolve.
const (
	keyMin = 5
	keyMax = 40
	valMin = 10
	valMax = 200
)

// Every missEvery-th measured key in native mode is a probe one byte
// longer than any stored key, so it is a guaranteed miss.
const missEvery = 16

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func main() {
	// Optional .env for the LOOKUP_* defaults; flags still win.
	_ = godotenv.Load()

	var (
		entries  = flag.Int("entries", envInt("LOOKUP_ENTRIES", 1_000_000), "Key/value pairs in the table")
		slots    = flag.Int("slots", envInt("LOOKUP_SLOTS", 128*1024), "Hash slots in the packed index")
		keys     = flag.Int("keys", envInt("LOOKUP_KEYS", 10_000), "Test keys per measurement pass")
		rounds   = flag.Int("rounds", envInt("LOOKUP_ROUNDS", 10), "Measurement passes over the test keys")
		capacity = flag.Int("capacity", envInt("LOOKUP_CAPACITY", query.DefaultCapacity), "First-attempt value buffer size on the external path")
		seed     = flag.Int64("seed", envInt64("LOOKUP_SEED", 0), "Table seed (0 draws from the clock)")
		wasmFile = flag.String("wasm", os.Getenv("LOOKUP_WASM"), "Benchmark this WASM module instead of the native paths")
		debug    = flag.Bool("debug", false, "Development logging to stderr")
	)
	flag.Parse()

	if *debug {
		if log, err := zap.NewDevelopment(); err == nil {
			shm.SetLogger(log.Named("shm"))
			region.SetLogger(log.Named("region"))
			query.SetLogger(log.Named("query"))
			engine.SetLogger(log.Named("engine"))
		}
	}

	if err := run(*entries, *slots, *keys, *rounds, *capacity, *seed, *wasmFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(entries, slots, keys, rounds, capacity int, seed int64, wasmFile string) error {
	if entries <= 0 || slots <= 0 || keys <= 0 || rounds <= 0 {
		return errors.InvalidInput(errors.PhaseIndex, "entries, slots, keys and rounds must be positive")
	}
	if keys > entries {
		keys = entries
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	fmt.Printf("Creating lookup table: %d entries, %d slots (seed %d)\n", entries, slots, seed)
	table, err := buildTable(rng, entries, slots, keys)
	if err != nil {
		return err
	}
	defer table.Close()

	if wasmFile != "" {
		return runWasm(context.Background(), table, slots, keys, rounds, capacity, wasmFile)
	}
	return runNative(table, slots, keys, rounds, capacity, rng)
}

// benchTable is the generated corpus: the packed index built into a shared
// object, the resident host table over the same pairs, and the test keys
// with their expected values.
type benchTable struct {
	obj   *shm.Object
	buf   []byte
	stats index.Stats
	svc   *query.Service

	keys   [][]byte
	values [][]byte
}

func (t *benchTable) Close() {
	if t.buf != nil {
		if err := shm.Unmap(t.buf); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: unmap index region: %v\n", err)
		}
		t.buf = nil
	}
	if t.obj != nil {
		_ = t.obj.Close()
		t.obj = nil
	}
}

// buildTable generates entries random pairs, packs them into an anonymous
// shared object, and loads the same pairs into a query service. The first
// testKeys pairs double as the measurement keys, matching what a guest
// module expects from its test-key blob.
func buildTable(rng *rand.Rand, entries, slots, testKeys int) (*benchTable, error) {
	b := index.Builder{Slots: slots}
	svc := query.NewService()
	t := &benchTable{
		svc:    svc,
		keys:   make([][]byte, 0, testKeys),
		values: make([][]byte, 0, testKeys),
	}

	for b.Len() < entries {
		key := randBytes(rng, keyMin, keyMax)
		val := randBytes(rng, valMin, valMax)
		if err := b.Add(key, val); err != nil {
			// Random keys collide now and then; draw a fresh one.
			if errors.IsKind(err, errors.KindInvalidInput) {
				continue
			}
			return nil, err
		}
		svc.Insert(key, val)
		if len(t.keys) < testKeys {
			t.keys = append(t.keys, key)
			t.values = append(t.values, val)
		}
	}

	size := b.Size()
	obj, err := shm.CreateAnonymous("lookup.index", int64(size))
	if err != nil {
		return nil, err
	}
	t.obj = obj
	buf, err := obj.Map(shm.ReadWrite)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.buf = buf

	if _, t.stats, err = b.BuildInto(buf); err != nil {
		t.Close()
		return nil, err
	}
	fmt.Printf("  size: %.1f Mb\n", float64(t.stats.Bytes)/(1024*1024))
	fmt.Printf("  avg chain: %.1f\n", float64(t.stats.Entries)/float64(t.stats.UsedSlots))
	fmt.Printf("  max chain: %d\n", t.stats.MaxChain)
	return t, nil
}

// runNative checks both resolution paths against the expected values, then
// times them over the same key sequence. Misses are real: probe keys too
// long to be stored replace every missEvery-th test key.
func runNative(t *benchTable, slots, keys, rounds, capacity int, rng *rand.Rand) error {
	rd, err := index.New(t.buf, slots, nil)
	if err != nil {
		return err
	}
	client := &query.Client{Resolver: t.svc, Capacity: capacity}

	measured := make([][]byte, len(t.keys))
	expected := make([][]byte, len(t.keys))
	hits, misses, retries := 0, 0, 0
	for i, k := range t.keys {
		if (i+1)%missEvery == 0 {
			measured[i] = randBytes(rng, keyMax+1, keyMax+8)
			misses++
			continue
		}
		measured[i] = k
		expected[i] = t.values[i]
		hits++
		if len(t.values[i]) > capacity {
			retries++
		}
	}

	fmt.Println("Verifying lookups")
	for i, k := range measured {
		if err := checkLookup(rd.Lookup, k, expected[i]); err != nil {
			return err
		}
		if err := checkLookup(client.Lookup, k, expected[i]); err != nil {
			return err
		}
	}

	reps := keys * rounds
	fmt.Printf("Running performance tests: %d reps (%d hits, %d misses, %d retried)\n",
		reps, hits*rounds, misses*rounds, retries*rounds)

	start := time.Now()
	for r := 0; r < rounds; r++ {
		for _, k := range measured {
			if _, err := rd.Lookup(k); err != nil && !errors.IsKind(err, errors.KindNotFound) {
				return err
			}
		}
	}
	durInt := time.Since(start)
	fmt.Printf("  internal: %v (%d ns/op)\n", durInt.Round(time.Millisecond), durInt.Nanoseconds()/int64(reps))

	start = time.Now()
	for r := 0; r < rounds; r++ {
		for _, k := range measured {
			if _, err := client.Lookup(k); err != nil && !errors.IsKind(err, errors.KindNotFound) {
				return err
			}
		}
	}
	durExt := time.Since(start)
	fmt.Printf("  external: %v (%d ns/op)\n", durExt.Round(time.Millisecond), durExt.Nanoseconds()/int64(reps))

	fmt.Printf("  speed up: %.1fx\n", float64(durExt.Microseconds())/float64(durInt.Microseconds()))
	return nil
}

// checkLookup resolves k through fn and compares against want; nil means
// the key must miss.
func checkLookup(fn func([]byte) ([]byte, error), k, want []byte) error {
	got, err := fn(k)
	if want == nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return errors.InvalidData(errors.PhaseIndex, fmt.Sprintf("probe key %q resolved to a %d-byte value", k, len(got)))
	}
	if err != nil {
		return err
	}
	if string(got) != string(want) {
		return errors.InvalidData(errors.PhaseIndex,
			fmt.Sprintf("key %q resolved to %d bytes, expected %d", k, len(got), len(want)))
	}
	return nil
}

// runWasm maps the packed index read-only into the module's linear memory,
// hands it the test keys, and times the module's internal and external
// benchmark exports. The module resolves external lookups through the
// engine's host table, which runWasm loads with the same pairs.
func runWasm(ctx context.Context, t *benchTable, slots, keys, rounds, capacity int, wasmFile string) error {
	wasmBytes, err := os.ReadFile(wasmFile)
	if err != nil {
		return err
	}

	fmt.Printf("Loading wasm module %s\n", wasmFile)
	eng, err := engine.New(ctx, engine.Config{PinnedMemory: true}, t.svc)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	g, err := eng.LoadGuest(ctx, "lookup-bench", wasmBytes)
	if err != nil {
		return err
	}

	blob := packKeys(t.keys)
	blobOff, err := g.Alloc(uint32(len(blob)))
	if err != nil {
		return err
	}
	if err := g.Write(blobOff, blob); err != nil {
		return err
	}

	set, err := region.NewMapper(g, g).Map(
		[]*shm.Object{t.obj},
		[]region.Spec{{Name: "index", Size: uintptr(len(t.buf)), Access: region.ReadOnly}},
	)
	if err != nil {
		return err
	}
	defer set.Close()
	base, err := g.RecordBase()
	if err != nil {
		return err
	}
	reg, err := set.Region("index")
	if err != nil {
		return err
	}

	// The module receives the slot count and the chain-area size
	// separately; the bumper byte belongs to the chain area.
	lookupBytes := len(t.buf) - slots*4
	res, err := g.Call(ctx, "create_context",
		uint64(reg.GuestOffset()),
		uint64(uint32(slots)),
		uint64(uint32(lookupBytes)),
		uint64(uint32(keys)),
		uint64(blobOff),
		uint64(uint32(len(blob))),
		uint64(uint32(capacity)))
	if err != nil {
		return err
	}
	handle := int32(uint32(res))
	if handle <= 0 {
		return errors.Protocol(errors.PhaseEngine, "module rejected its context (returned %d)", handle)
	}

	fmt.Println("Verifying lookups")
	if _, err := g.Call(ctx, "verify_lookups", uint64(uint32(handle))); err != nil {
		return err
	}

	fmt.Printf("Running performance tests: %d reps\n", keys*rounds)
	start := time.Now()
	for r := 0; r < rounds; r++ {
		if _, err := g.Call(ctx, "performance_test_internal", uint64(uint32(handle))); err != nil {
			return err
		}
	}
	durInt := time.Since(start)
	fmt.Printf("  internal: %v (%d ns/op)\n", durInt.Round(time.Millisecond), durInt.Nanoseconds()/int64(keys*rounds))

	start = time.Now()
	for r := 0; r < rounds; r++ {
		if _, err := g.Call(ctx, "performance_test_external", uint64(uint32(handle))); err != nil {
			return err
		}
	}
	durExt := time.Since(start)
	fmt.Printf("  external: %v (%d ns/op)\n", durExt.Round(time.Millisecond), durExt.Nanoseconds()/int64(keys*rounds))

	fmt.Printf("  speed up: %.1fx\n", float64(durExt.Microseconds())/float64(durInt.Microseconds()))

	// The numbers only mean anything if the mappings stayed put.
	return g.CheckBase(base)
}

// packKeys serializes test keys the way guest modules consume them: a
// little-endian u32 length before each key's bytes.
func packKeys(keys [][]byte) []byte {
	size := 0
	for _, k := range keys {
		size += 4 + len(k)
	}
	blob := make([]byte, 0, size)
	var lenb [4]byte
	for _, k := range keys {
		binary.LittleEndian.PutUint32(lenb[:], uint32(len(k)))
		blob = append(blob, lenb[:]...)
		blob = append(blob, k...)
	}
	return blob
}

func randBytes(rng *rand.Rand, minLen, maxLen int) []byte {
	n := minLen + rng.Intn(maxLen-minLen+1)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rng.Intn(len(alphanumeric))]
	}
	return b
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
