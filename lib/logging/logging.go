package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	contextKeyLogger contextKey = "logger"
)

type ContextData struct {
	Logger *zap.Logger
	Debug  bool
}

// Setup builds the process-wide logger and installs it as the zap global.
func Setup(debug bool) (*zap.Logger, error) {
	zapconfig := zap.NewProductionConfig()
	if debug {
		zapconfig = zap.NewDevelopmentConfig()
		zapconfig.Level.SetLevel(zap.DebugLevel)
	}

	logger, err := zapconfig.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(logger)

	return logger, nil
}

func NewContextWithLogger(ctx context.Context, logger *zap.Logger, debug bool) context.Context {
	return context.WithValue(ctx, contextKeyLogger, ContextData{Logger: logger, Debug: debug})
}

func FromContext(ctx context.Context) *zap.Logger {
	cdata, ok := ctx.Value(contextKeyLogger).(ContextData)
	if !ok {
		return zap.L()
	}
	return cdata.Logger
}

func DataFromContext(ctx context.Context) ContextData {
	cdata, ok := ctx.Value(contextKeyLogger).(ContextData)
	if !ok {
		return ContextData{
			Logger: zap.L(),
		}
	}
	return cdata
}
