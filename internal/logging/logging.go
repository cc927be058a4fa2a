package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger: a JSON production core on stdout at the
// configured level, teed with a console core writing into buf. The buffer
// core is pinned at Info regardless of the stdout verbosity.
func New(level string, buf *Buffer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	stdoutCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stdout),
		lvl,
	)

	dashCfg := zap.NewProductionEncoderConfig()
	dashCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	dashCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	dashCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(dashCfg),
		zapcore.AddSync(buf),
		zapcore.InfoLevel,
	)

	return zap.New(zapcore.NewTee(stdoutCore, dashCore)), nil
}
