package xlog

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Repeated lines (same level and message) are sampled per second, a
// caller spinning on stale handles must not flood the console.
const (
	consoleSampleTick       = time.Second
	consoleSampleFirst      = 100
	consoleSampleThereafter = 100
)

var _ xLogCore = (*consoleCore)(nil)

type consoleCore struct{}

func consoleEncoderConfig(lvlEnc zapcore.LevelEncoder, tsEnc zapcore.TimeEncoder) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:    "msg",
		LevelKey:      "lvl",
		EncodeLevel:   lvlEnc,
		TimeKey:       "ts",
		EncodeTime:    tsEnc,
		CallerKey:     "callAt",
		EncodeCaller:  zapcore.ShortCallerEncoder,
		FunctionKey:   "fn",
		NameKey:       "component",
		EncodeName:    zapcore.FullNameEncoder,
		StacktraceKey: coreKeyIgnored, // stacks go through ErrorStack
	}
}

func (cc *consoleCore) build(
	lvlEnabler zapcore.LevelEnabler,
	encoder LogEncoderType,
	writer LogOutWriterType,
	lvlEnc zapcore.LevelEncoder,
	tsEnc zapcore.TimeEncoder,
) (zapcore.Core, error) {
	core := zapcore.NewCore(
		getEncoderByType(encoder)(consoleEncoderConfig(lvlEnc, tsEnc)),
		getOutWriterByType(writer),
		lvlEnabler,
	)
	return zapcore.NewSamplerWithOptions(core, consoleSampleTick, consoleSampleFirst, consoleSampleThereafter), nil
}
