// Package config resolves the engine's runtime settings from CLI flags,
// environment variables, and built-in defaults, in that precedence order,
// using a layered viper configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultModelID           = "qwen3-tts-12hz-0.6b-base"
	DefaultTokenEnv          = "SPEAK_SELECTION_ENGINE_TOKEN"
	DefaultSynthBackend      = "auto"
	DefaultQwenModelName     = "Qwen/Qwen3-TTS-12Hz-0.6B-CustomVoice"
	DefaultQwenBaseModelName = "Qwen/Qwen3-TTS-12Hz-0.6B-Base"
	DefaultQwenDeviceMap     = "cuda:0"
	DefaultQwenDType         = "bfloat16"
	DefaultQwenAttn          = "flash_attention_2"
	DefaultQwenSpeaker       = "Ryan"
	DefaultKyutaiModelName   = "Verylicious/pocket-tts-ungated"
	DefaultKyutaiVoicePrmpt  = "alba"
	DefaultKyutaiSampleRate  = 24000
	DefaultWarmupOnStartup   = true
	DefaultWarmupText        = "Engine warmup sentence."
	DefaultWarmupLanguage    = "auto"
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8765
	EngineVersion            = "0.1.0"
)

// EngineConfig is the immutable-per-activation runtime configuration. A new
// value is built and atomically swapped in on /v1/models/activate.
type EngineConfig struct {
	Token   string
	Host    string
	Port    int
	DataDir string

	ActiveModelID string
	SynthBackend  string // auto|qwen|kyutai|mock

	QwenModelName      string // custom-voice repo, used by the qwen backend and qwen_custom prefetch
	QwenBaseModelName  string // base-model repo, used only by qwen_base prefetch
	QwenDeviceMap      string
	QwenDType          string
	QwenAttn           string
	QwenDefaultSpeaker string

	KyutaiModelName   string
	KyutaiVoicePrompt string
	KyutaiSampleRate  int

	WarmupOnStartup bool
	WarmupText      string
	WarmupLanguage  string

	SoxPath              string
	HFCacheDir           string
	HFHubCacheDir        string
	TransformersCacheDir string
}

// Device derives the coarse accelerator family from QwenDeviceMap, mirroring
// the "cuda:0" -> "cuda" style normalization every backend status reports.
func (c EngineConfig) Device() string {
	normalized := strings.ToLower(strings.TrimSpace(c.QwenDeviceMap))
	switch {
	case strings.HasPrefix(normalized, "cuda"):
		return "cuda"
	case strings.HasPrefix(normalized, "cpu"):
		return "cpu"
	case strings.HasPrefix(normalized, "mps"):
		return "mps"
	}
	if idx := strings.Index(normalized, ":"); idx >= 0 {
		return normalized[:idx]
	}
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func defaults() EngineConfig {
	return EngineConfig{
		Host:               DefaultHost,
		Port:               DefaultPort,
		ActiveModelID:      DefaultModelID,
		SynthBackend:       DefaultSynthBackend,
		QwenModelName:      DefaultQwenModelName,
		QwenBaseModelName:  DefaultQwenBaseModelName,
		QwenDeviceMap:      DefaultQwenDeviceMap,
		QwenDType:          DefaultQwenDType,
		QwenAttn:           DefaultQwenAttn,
		QwenDefaultSpeaker: DefaultQwenSpeaker,
		KyutaiModelName:    DefaultKyutaiModelName,
		KyutaiVoicePrompt:  DefaultKyutaiVoicePrmpt,
		KyutaiSampleRate:   DefaultKyutaiSampleRate,
		WarmupOnStartup:    DefaultWarmupOnStartup,
		WarmupText:         DefaultWarmupText,
		WarmupLanguage:     DefaultWarmupLanguage,
	}
}

// RegisterFlags binds the daemon's CLI surface onto fs, matching the
// --server command's flags. Load later binds these into viper with env and
// default fallbacks.
func RegisterFlags(fs *pflag.FlagSet) {
	d := defaults()
	fs.Bool("server", false, "run the daemon instead of a one-shot CLI command")
	fs.String("host", d.Host, "bind host for the HTTP/WS listener")
	fs.Int("port", d.Port, "bind port for the HTTP/WS listener")
	fs.String("token", "", "bearer token (overrides --token-env)")
	fs.String("token-env", DefaultTokenEnv, "environment variable holding the bearer token")
	fs.String("data-dir", "", "data directory root (defaults to ./.data)")
	fs.Bool("bootstrap-stdin", false, "read {token,port,data_dir} JSON from stdin, overriding flags for those fields")
	fs.String("synth-backend", d.SynthBackend, "synthesis backend: auto|qwen|kyutai|mock")
}

// flagBinder is satisfied by *cobra.Command, kept narrow so this package
// does not need to import cobra directly.
type flagBinder interface {
	Flags() *pflag.FlagSet
}

// LoadOptions parameterizes Load with the invoking command's bound flags.
type LoadOptions struct {
	Cmd flagBinder
}

// Load resolves an EngineConfig from flags, environment variables (prefix
// VOICEREADER_, plus the bearer-token variable named by --token-env), and
// built-in defaults, validating the result.
func Load(opts LoadOptions) (EngineConfig, error) {
	v := viper.New()
	d := defaults()

	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("active_model_id", d.ActiveModelID)
	v.SetDefault("synth_backend", d.SynthBackend)
	v.SetDefault("qwen_model", d.QwenModelName)
	v.SetDefault("qwen_base_model", d.QwenBaseModelName)
	v.SetDefault("qwen_device_map", d.QwenDeviceMap)
	v.SetDefault("qwen_dtype", d.QwenDType)
	v.SetDefault("qwen_attn_implementation", d.QwenAttn)
	v.SetDefault("qwen_speaker", d.QwenDefaultSpeaker)
	v.SetDefault("kyutai_model", d.KyutaiModelName)
	v.SetDefault("kyutai_voice_prompt", d.KyutaiVoicePrompt)
	v.SetDefault("kyutai_sample_rate", d.KyutaiSampleRate)
	v.SetDefault("warmup_on_startup", d.WarmupOnStartup)
	v.SetDefault("warmup_text", d.WarmupText)
	v.SetDefault("warmup_language", d.WarmupLanguage)
	v.SetDefault("sox_path", "")
	v.SetDefault("hf_cache_dir", "")
	v.SetDefault("hf_hub_cache_dir", "")
	v.SetDefault("transformers_cache_dir", "")
	v.SetDefault("data_dir", "")
	v.SetDefault("token", "")
	v.SetDefault("token_env", DefaultTokenEnv)

	if opts.Cmd != nil {
		for viperKey, flagName := range map[string]string{
			"host":          "host",
			"port":          "port",
			"token":         "token",
			"token_env":     "token-env",
			"data_dir":      "data-dir",
			"synth_backend": "synth-backend",
		} {
			flag := opts.Cmd.Flags().Lookup(flagName)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(viperKey, flag); err != nil {
				return EngineConfig{}, fmt.Errorf("config: bind --%s: %w", flagName, err)
			}
		}
	}

	v.SetEnvPrefix("VOICEREADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	tokenEnv := v.GetString("token_env")
	if tokenEnv == "" {
		tokenEnv = DefaultTokenEnv
	}

	cfg := EngineConfig{
		Host:                 v.GetString("host"),
		Port:                 v.GetInt("port"),
		DataDir:              resolveDataDir(v.GetString("data_dir")),
		ActiveModelID:        v.GetString("active_model_id"),
		SynthBackend:         v.GetString("synth_backend"),
		QwenModelName:        v.GetString("qwen_model"),
		QwenBaseModelName:    v.GetString("qwen_base_model"),
		QwenDeviceMap:        v.GetString("qwen_device_map"),
		QwenDType:            v.GetString("qwen_dtype"),
		QwenAttn:             v.GetString("qwen_attn_implementation"),
		QwenDefaultSpeaker:   v.GetString("qwen_speaker"),
		KyutaiModelName:      v.GetString("kyutai_model"),
		KyutaiVoicePrompt:    v.GetString("kyutai_voice_prompt"),
		KyutaiSampleRate:     v.GetInt("kyutai_sample_rate"),
		WarmupOnStartup:      v.GetBool("warmup_on_startup"),
		WarmupText:           v.GetString("warmup_text"),
		WarmupLanguage:       v.GetString("warmup_language"),
		SoxPath:              v.GetString("sox_path"),
		HFCacheDir:           v.GetString("hf_cache_dir"),
		HFHubCacheDir:        v.GetString("hf_hub_cache_dir"),
		TransformersCacheDir: v.GetString("transformers_cache_dir"),
	}

	cfg.Token = resolveToken(v.GetString("token"), tokenEnv)

	if err := validate(cfg); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

func validate(cfg EngineConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("config: no bearer token resolved (set --token or the token-env variable)")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	switch cfg.SynthBackend {
	case "auto", "qwen", "kyutai", "mock":
	default:
		return fmt.Errorf("config: synth_backend %q must be one of auto|qwen|kyutai|mock", cfg.SynthBackend)
	}
	if cfg.KyutaiSampleRate <= 0 {
		return fmt.Errorf("config: kyutai_sample_rate must be positive")
	}
	return nil
}

// resolveDataDir defaults to ./.data when raw is empty; it does not touch
// the filesystem, leaving directory creation to callers that open stores.
func resolveDataDir(raw string) string {
	if raw != "" {
		return raw
	}
	return ".data"
}

func resolveToken(explicit, tokenEnv string) string {
	candidate := strings.TrimSpace(explicit)
	if candidate != "" {
		return candidate
	}
	return strings.TrimSpace(os.Getenv(tokenEnv))
}

// BootstrapOverrides is the {token,port,data_dir} payload optionally read
// from stdin via --bootstrap-stdin, taking precedence over flag values for
// the fields it sets.
type BootstrapOverrides struct {
	Token   *string `json:"token"`
	Port    *int    `json:"port"`
	DataDir *string `json:"data_dir"`
}

// Apply overlays non-nil bootstrap fields onto cfg.
func (b BootstrapOverrides) Apply(cfg EngineConfig) EngineConfig {
	if b.Token != nil {
		cfg.Token = strings.TrimSpace(*b.Token)
	}
	if b.Port != nil {
		cfg.Port = *b.Port
	}
	if b.DataDir != nil && *b.DataDir != "" {
		cfg.DataDir = *b.DataDir
	}
	return cfg
}
