// pkg/logger/logger.go
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Sugared = *zap.SugaredLogger

// New builds the process logger: production config when env is "prod",
// development config otherwise. STEAD_LOG_LEVEL overrides the level.
func New(env, service string) Sugared {
	var cfg zap.Config
	if env == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl := os.Getenv("STEAD_LOG_LEVEL"); lvl != "" {
		if parsed, err := zapcore.ParseLevel(lvl); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return z.Sugar().With("service", service)
}
