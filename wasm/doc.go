// Package wasm provides WebAssembly core module parsing and encoding.
//
// The decoder covers the sections a V5 guest binary carries: types,
// imports, functions, tables, memories, globals, exports, start, elements,
// code, data and custom sections. Function bodies and constant expressions
// are kept as raw bytes; the execution engine validates them.
//
// # Parsing
//
//	data, _ := os.ReadFile("program.wasm")
//	module, err := wasm.ParseModule(data)
//
// # Encoding
//
// Encode a module back to binary. The simulator uses this to synthesize the
// module that exports the guest's indirect function table:
//
//	encoded := module.Encode()
//
// # Instructions
//
// Expr assembles small instruction sequences:
//
//	body := wasm.NewExpr().
//		I32Const(1).I32Const(100).I32Const(5).
//		I32Const(0x037FC89C).I32Load(2, 0).
//		CallIndirect(0, 0).Drop().End()
package wasm
