package conf

import (
	"github.com/digitizerlab/ats-go/internal/logger"
)

// LoggingConfig returns the logging section, with the default level lowered
// to debug when debug is set
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	cfg := s.Logging
	if s.Debug {
		cfg.DefaultLevel = string(logger.LogLevelDebug)
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = string(logger.LogLevelDebug)
			cfg.Console = &console
		}
	}
	return &cfg
}
