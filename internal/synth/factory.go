package synth

import (
	"context"
	"fmt"

	"github.com/voicereader/speakd/internal/config"
)

// Create constructs the Synthesizer named by cfg.SynthBackend. "auto" tries
// Kyutai first, then Qwen, and falls back to Mock with FallbackActive set
// and Detail enumerating every failure, so a degraded engine still reports
// honestly instead of silently pretending to be the requested backend.
func Create(ctx context.Context, cfg config.EngineConfig, kyutaiCfg KyutaiConfig, qwenCfg QwenConfig) (Synthesizer, error) {
	switch cfg.SynthBackend {
	case "mock":
		return NewMock("explicit mock backend", false), nil
	case "qwen":
		return NewQwen(ctx, qwenCfg)
	case "kyutai":
		return NewKyutai(kyutaiCfg)
	case "auto":
		return createAuto(ctx, kyutaiCfg, qwenCfg)
	default:
		return nil, fmt.Errorf("synth: unknown synth_backend %q", cfg.SynthBackend)
	}
}

func createAuto(ctx context.Context, kyutaiCfg KyutaiConfig, qwenCfg QwenConfig) (Synthesizer, error) {
	kyutai, kyutaiErr := NewKyutai(kyutaiCfg)
	if kyutaiErr == nil {
		return kyutai, nil
	}

	qwen, qwenErr := NewQwen(ctx, qwenCfg)
	if qwenErr == nil {
		return qwen, nil
	}

	detail := fmt.Sprintf("kyutai unavailable (%s); qwen unavailable (%s); using tone fallback", kyutaiErr, qwenErr)
	return NewMock(detail, true), nil
}
