// Package guest holds the guest half of the bridge: the execution context
// built over the shared regions and the command loop a native guest runs
// against its signal word.
//
// Native guests (in-process goroutines or child processes) use Context and
// Loop directly. WASM guests implement the same shapes inside the module
// and receive their region ranges as offset/length descriptors through
// create_context and update_context; the host never hands a guest a raw
// pointer.
package guest
