package engine

import (
	"bytes"
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/query"
)

// hostModule is the import namespace guests bind against.
const hostModule = "env"

// instantiateEnv registers the bridge's host functions. Both take lengths
// before pointers on the wire. A bad guest pointer panics, which wazero
// turns into a trap on the calling guest.
func instantiateEnv(ctx context.Context, r wazero.Runtime, resolver query.Resolver) error {
	i32 := api.ValueTypeI32
	_, err := r.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostPrint), []api.ValueType{i32, i32}, nil).
		Export("print").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostLookup(resolver)), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("lookup").
		Instantiate(ctx)
	return err
}

// hostPrint implements env.print(len, ptr): guest diagnostics routed to
// the engine logger.
func hostPrint(_ context.Context, mod api.Module, stack []uint64) {
	length := api.DecodeU32(stack[0])
	ptr := api.DecodeU32(stack[1])

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		panic(errors.OutOfBounds(errors.PhaseEngine, uint64(ptr), uint64(length), uint64(mod.Memory().Size())))
	}
	Logger().Info("guest print",
		zap.String("guest", mod.Name()),
		zap.ByteString("msg", bytes.TrimRight(data, "\n")))
}

// hostLookup implements env.lookup(keyLen, keyPtr, capPtr, valPtr) -> i32.
// The capacity word at capPtr is read for the offered buffer size and,
// whenever the key exists, overwritten with the true value length. Values
// are resolved straight into the guest's buffer, no staging copy.
func hostLookup(resolver query.Resolver) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, stack []uint64) {
		keyLen := api.DecodeU32(stack[0])
		keyPtr := api.DecodeU32(stack[1])
		capPtr := api.DecodeU32(stack[2])
		valPtr := api.DecodeU32(stack[3])

		mem := mod.Memory()
		key, ok := mem.Read(keyPtr, keyLen)
		if !ok {
			panic(errors.OutOfBounds(errors.PhaseEngine, uint64(keyPtr), uint64(keyLen), uint64(mem.Size())))
		}
		capacity, ok := mem.ReadUint32Le(capPtr)
		if !ok {
			panic(errors.OutOfBounds(errors.PhaseEngine, uint64(capPtr), 4, uint64(mem.Size())))
		}
		dst, ok := mem.Read(valPtr, capacity)
		if !ok {
			panic(errors.OutOfBounds(errors.PhaseEngine, uint64(valPtr), uint64(capacity), uint64(mem.Size())))
		}

		if resolver == nil {
			stack[0] = api.EncodeI32(int32(query.NotFound))
			return
		}
		status, _, required := resolver.Resolve(key, dst)
		if status != query.NotFound {
			mem.WriteUint32Le(capPtr, required)
		}
		stack[0] = api.EncodeI32(int32(status))
	}
}
