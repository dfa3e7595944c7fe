package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore gives every level listed in cfg.Levels its own sampler.
// Unlisted levels, including Warn and above, pass through unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	cores := make([]zapcore.Core, 0, len(cfg.Levels)+1)
	for level, s := range cfg.Levels {
		only := &levelCore{Core: core, match: func(l zapcore.Level) bool { return l == level }}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick.Duration(), s.Initial, s.Thereafter))
	}
	cores = append(cores, &levelCore{Core: core, match: func(l zapcore.Level) bool {
		_, sampled := cfg.Levels[l]
		return !sampled
	}})
	return zapcore.NewTee(cores...)
}

// levelCore restricts core to the levels match accepts.
type levelCore struct {
	zapcore.Core
	match func(zapcore.Level) bool
}

func (c *levelCore) Enabled(l zapcore.Level) bool {
	return c.match(l) && c.Core.Enabled(l)
}

func (c *levelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), match: c.match}
}
