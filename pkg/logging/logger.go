package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process logger. Local runs get the development encoder
// (human-readable, colored levels); everything else logs structured JSON.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch env {
	case "local", "DEBUG":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
