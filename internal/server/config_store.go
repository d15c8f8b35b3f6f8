package server

import "sync"

// StaticConfig is the default ConfigSource: it reports the configuration the
// simulation was started with and stores every field of an accepted update,
// mirroring the teacher's InitialConfig/ApplyConfig split. The running
// actors never read it, so an update does not resize or retune the fleet or
// the passenger queue; only RenderIntervalMs is read back, by the server's
// WebSocket push loop.
type StaticConfig struct {
	mu  sync.Mutex
	cfg SimulationConfig
}

// NewStaticConfig seeds a StaticConfig with the simulation's startup values.
func NewStaticConfig(cfg SimulationConfig) *StaticConfig {
	return &StaticConfig{cfg: cfg}
}

func (s *StaticConfig) SimulationConfig() SimulationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *StaticConfig) ApplySimulationConfig(next SimulationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = next
}
