package params

type ListenerConfig struct {
	// Network is the network to listen on.
	// The network must be "tcp", "tcp4", "tcp6", "unix" or "unixpacket".
	Network string
	// Address is the address to listen on.
	Address string
}

type WebDaemonConfig struct {
	ListenerConfig

	// EngineConfig is the projection/index configuration the daemon's
	// engine instance is built with.
	EngineConfig *EngineConfig

	// FetchConfig configures the tile fetch collaborator.
	// If nil, the daemon serves only tiles inserted by other producers.
	FetchConfig *FetchConfig
}

func DefaultWebListenerConfig() ListenerConfig {
	return ListenerConfig{
		Network: "tcp",
		Address: "localhost:3000",
	}
}

func DefaultWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		ListenerConfig: DefaultWebListenerConfig(),
		EngineConfig:   DefaultEngineConfig(),
		FetchConfig:    DefaultFetchConfig(),
	}
}

func DefaultTestWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		ListenerConfig: ListenerConfig{
			Network: "tcp",
			Address: "localhost:3333",
		},
		EngineConfig: DefaultEngineConfig(),
		// No fetcher; tests insert tiles by hand.
		FetchConfig: nil,
	}
}
