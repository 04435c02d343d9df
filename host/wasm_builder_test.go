package host

// A tiny wasm binary writer for building stub contracts in tests.

const (
	valI32 byte = 0x7f
	valI64 byte = 0x7e

	opUnreachable byte = 0x00
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
	opEnd         byte = 0x0b
)

var wasmHeader = []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

type stubFunc struct {
	export  string
	params  []byte
	results []byte
	body    []byte // instructions without the trailing end
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func vec(items ...[]byte) []byte {
	out := uleb128(uint32(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func wasmName(s string) []byte {
	return append(uleb128(uint32(len(s))), s...)
}

func section(id byte, content []byte) []byte {
	out := append([]byte{id}, uleb128(uint32(len(content)))...)
	return append(out, content...)
}

// buildModule assembles a module with one function per entry, each exported
// under its name, plus an exported one-page memory when withMemory is set.
func buildModule(withMemory bool, funcs ...stubFunc) []byte {
	out := append([]byte{}, wasmHeader...)

	var types, indices, exports, bodies [][]byte
	if withMemory {
		exports = append(exports, append(wasmName(ExportMemory), 0x02, 0x00))
	}
	for i, f := range funcs {
		sig := append([]byte{0x60}, vec(splitBytes(f.params)...)...)
		sig = append(sig, vec(splitBytes(f.results)...)...)
		types = append(types, sig)
		indices = append(indices, uleb128(uint32(i)))
		exports = append(exports, append(wasmName(f.export), append([]byte{0x00}, uleb128(uint32(i))...)...))

		code := append([]byte{0x00}, f.body...) // no locals
		code = append(code, opEnd)
		bodies = append(bodies, append(uleb128(uint32(len(code))), code...))
	}

	if len(funcs) > 0 {
		out = append(out, section(1, vec(types...))...)
		out = append(out, section(3, vec(indices...))...)
	}
	if withMemory {
		out = append(out, section(5, []byte{0x01, 0x00, 0x01})...)
	}
	if len(exports) > 0 {
		out = append(out, section(7, vec(exports...))...)
	}
	if len(funcs) > 0 {
		out = append(out, section(10, vec(bodies...))...)
	}
	return out
}

func splitBytes(b []byte) [][]byte {
	out := make([][]byte, len(b))
	for i := range b {
		out[i] = b[i : i+1]
	}
	return out
}

// stubContract returns the full export surface plus extra. allocate answers
// null, init answers initBody, value-taking exports answer 0.
func stubContract(initBody []byte, extra ...stubFunc) []byte {
	funcs := []stubFunc{
		{export: ExportAllocate, params: []byte{valI32}, results: []byte{valI32}, body: []byte{opI32Const, 0x00}},
		{export: ExportDeallocate, params: []byte{valI32, valI32}},
		{export: ExportGetLastLength, results: []byte{valI32}, body: []byte{opI32Const, 0x00}},
		{export: ExportInit, results: []byte{valI32}, body: initBody},
		{export: ExportIncrementVote, params: []byte{valI32, valI32}, results: []byte{valI64}, body: []byte{opI64Const, 0x00}},
		{export: ExportApplyPollEvent, params: []byte{valI32, valI32}, results: []byte{valI64}, body: []byte{opI64Const, 0x00}},
	}
	return buildModule(true, append(funcs, extra...)...)
}
