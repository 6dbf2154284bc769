package protocol

// DefaultRegistry wires the two built-in adapters at their current latest
// versions. Gateways needing older wire dialects register additional
// versioned adapters on top of this before serving traffic.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewA2AAdapter(""))
	r.Register(NewMCPAdapter(""))
	return r
}
