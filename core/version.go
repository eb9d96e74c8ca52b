package core

// Build identifiers reported by the getVersion RPC method.
const (
	BuildName    = "luckchain"
	BuildVersion = "0.1.0"
)
