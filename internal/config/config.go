package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Backbone  BackboneConfig  `mapstructure:"backbone"`
	Codec     CodecConfig     `mapstructure:"codec"`
	Phoneme   PhonemeConfig   `mapstructure:"phoneme"`
	Synth     SynthConfig     `mapstructure:"synth"`
	Server    ServerConfig    `mapstructure:"server"`
	Reference ReferenceConfig `mapstructure:"reference"`
}

type PathsConfig struct {
	TokenizerPath string `mapstructure:"tokenizer_path"`
	ReferenceDir  string `mapstructure:"reference_dir"`
}

type BackboneConfig struct {
	Backend     string `mapstructure:"backend"`
	ModelPath   string `mapstructure:"model_path"`
	Command     string `mapstructure:"command"`
	ORTLibrary  string `mapstructure:"ort_library_path"`
	Threads     int    `mapstructure:"threads"`
	ContextSize int    `mapstructure:"context_size"`

	// Vocabulary layout of the shipped backbone bundle: special token ids
	// and the offset of the codec-token block above the text vocabulary.
	BOSToken         int64 `mapstructure:"bos_token"`
	SpeechStartToken int64 `mapstructure:"speech_start_token"`
	StopToken        int64 `mapstructure:"stop_token"`
	SpeechOffset     int64 `mapstructure:"speech_offset"`
}

type CodecConfig struct {
	Backend    string `mapstructure:"backend"`
	ModelPath  string `mapstructure:"model_path"`
	ORTLibrary string `mapstructure:"ort_library_path"`
	Threads    int    `mapstructure:"threads"`
	SampleRate int    `mapstructure:"sample_rate"`
	FrameRate  int    `mapstructure:"frame_rate"`
	VocabSize  int    `mapstructure:"vocab_size"`
}

type PhonemeConfig struct {
	Command  string `mapstructure:"command"`
	Language string `mapstructure:"language"`
}

type SynthConfig struct {
	Temperature       float64 `mapstructure:"temperature"`
	TopK              int     `mapstructure:"top_k"`
	TopP              float64 `mapstructure:"top_p"`
	Seed              uint64  `mapstructure:"seed"`
	MaxSteps          int     `mapstructure:"max_steps"`
	GenerationReserve int     `mapstructure:"generation_reserve"`
	ChunkFrames       int     `mapstructure:"chunk_frames"`
	OverlapFrames     int     `mapstructure:"overlap_frames"`
	CrossfadeMS       float64 `mapstructure:"crossfade_ms"`
	QueueDepth        int     `mapstructure:"queue_depth"`
	WatermarkKey      string  `mapstructure:"watermark_key"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	MaxTextBytes   int    `mapstructure:"max_text_bytes"`
	RequestTimeout int    `mapstructure:"request_timeout"`
	Workers        int    `mapstructure:"workers"`
}

type ReferenceConfig struct {
	MinSeconds float64 `mapstructure:"min_seconds"`
	MaxSeconds float64 `mapstructure:"max_seconds"`
	CacheSize  int     `mapstructure:"cache_size"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			TokenizerPath: "models/tokenizer.model",
			ReferenceDir:  "references",
		},
		Backbone: BackboneConfig{
			Backend:     BackboneONNX,
			ModelPath:   "models/backbone",
			Command:     "",
			ORTLibrary:  "",
			Threads:     4,
			ContextSize: 2048,

			BOSToken:         1,
			SpeechStartToken: 3,
			StopToken:        4,
			SpeechOffset:     8192,
		},
		Codec: CodecConfig{
			Backend:    CodecONNX,
			ModelPath:  "models/codec",
			ORTLibrary: "",
			Threads:    2,
			SampleRate: 24000,
			FrameRate:  50,
			VocabSize:  65536,
		},
		Phoneme: PhonemeConfig{
			Command:  "espeak-ng",
			Language: "en-us",
		},
		Synth: SynthConfig{
			Temperature:       1.0,
			TopK:              50,
			TopP:              1.0,
			Seed:              0,
			MaxSteps:          1024,
			GenerationReserve: 512,
			ChunkFrames:       50,
			OverlapFrames:     8,
			CrossfadeMS:       20,
			QueueDepth:        4,
			WatermarkKey:      "",
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			MaxTextBytes:   4096,
			RequestTimeout: 120,
			Workers:        2,
		},
		Reference: ReferenceConfig{
			MinSeconds: 1,
			MaxSeconds: 30,
			CacheSize:  16,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-tokenizer-path", defaults.Paths.TokenizerPath, "Path to SentencePiece tokenizer model")
	fs.String("paths-reference-dir", defaults.Paths.ReferenceDir, "Directory holding reference manifest and codes")
	fs.String("backbone-backend", defaults.Backbone.Backend, "Backbone backend (onnx|exec)")
	fs.String("backbone-model-path", defaults.Backbone.ModelPath, "Backbone model bundle directory")
	fs.String("backbone-command", defaults.Backbone.Command, "Quantized runner command line (exec backend)")
	fs.String("backbone-ort-library-path", defaults.Backbone.ORTLibrary, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Backbone.ORTLibrary, "Path to ONNX Runtime shared library (alias for --backbone-ort-library-path)")
	fs.Int("backbone-threads", defaults.Backbone.Threads, "Backbone intra-op thread count")
	fs.Int("backbone-context-size", defaults.Backbone.ContextSize, "Backbone context window in tokens")
	fs.String("codec-backend", defaults.Codec.Backend, "Codec backend (onnx)")
	fs.String("codec-model-path", defaults.Codec.ModelPath, "Codec model bundle directory")
	fs.String("codec-ort-library-path", defaults.Codec.ORTLibrary, "Path to ONNX Runtime shared library for the codec")
	fs.Int("codec-threads", defaults.Codec.Threads, "Codec intra-op thread count")
	fs.String("phoneme-command", defaults.Phoneme.Command, "Phonemizer executable (espeak-ng compatible)")
	fs.String("phoneme-language", defaults.Phoneme.Language, "Default phonemization language tag")
	fs.Float64("synth-temperature", defaults.Synth.Temperature, "Sampling temperature (0 = greedy)")
	fs.Int("synth-top-k", defaults.Synth.TopK, "Top-k sampling cutoff (0 disables)")
	fs.Float64("synth-top-p", defaults.Synth.TopP, "Nucleus sampling threshold")
	fs.Uint64("synth-seed", defaults.Synth.Seed, "Random seed (0 = time-derived)")
	fs.Int("synth-max-steps", defaults.Synth.MaxSteps, "Maximum generation steps")
	fs.Int("synth-chunk-frames", defaults.Synth.ChunkFrames, "Codec frames per streaming chunk")
	fs.Int("synth-overlap-frames", defaults.Synth.OverlapFrames, "Trailing frames carried into the next chunk")
	fs.Float64("synth-crossfade-ms", defaults.Synth.CrossfadeMS, "Crossfade window at chunk seams in milliseconds")
	fs.String("synth-watermark-key", defaults.Synth.WatermarkKey, "Watermark key (empty disables watermarking)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum text length for POST /tts")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis deadline in seconds")
	fs.Int("server-workers", defaults.Server.Workers, "Maximum concurrent synthesis requests")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("AIRTTS")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("backbone.ort_library_path", "AIRTTS_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("airtts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.tokenizer_path", c.Paths.TokenizerPath)
	v.SetDefault("paths.reference_dir", c.Paths.ReferenceDir)
	v.SetDefault("backbone.backend", c.Backbone.Backend)
	v.SetDefault("backbone.model_path", c.Backbone.ModelPath)
	v.SetDefault("backbone.command", c.Backbone.Command)
	v.SetDefault("backbone.ort_library_path", c.Backbone.ORTLibrary)
	v.SetDefault("backbone.threads", c.Backbone.Threads)
	v.SetDefault("backbone.context_size", c.Backbone.ContextSize)
	v.SetDefault("backbone.bos_token", c.Backbone.BOSToken)
	v.SetDefault("backbone.speech_start_token", c.Backbone.SpeechStartToken)
	v.SetDefault("backbone.stop_token", c.Backbone.StopToken)
	v.SetDefault("backbone.speech_offset", c.Backbone.SpeechOffset)
	v.SetDefault("codec.backend", c.Codec.Backend)
	v.SetDefault("codec.model_path", c.Codec.ModelPath)
	v.SetDefault("codec.ort_library_path", c.Codec.ORTLibrary)
	v.SetDefault("codec.threads", c.Codec.Threads)
	v.SetDefault("codec.sample_rate", c.Codec.SampleRate)
	v.SetDefault("codec.frame_rate", c.Codec.FrameRate)
	v.SetDefault("codec.vocab_size", c.Codec.VocabSize)
	v.SetDefault("phoneme.command", c.Phoneme.Command)
	v.SetDefault("phoneme.language", c.Phoneme.Language)
	v.SetDefault("synth.temperature", c.Synth.Temperature)
	v.SetDefault("synth.top_k", c.Synth.TopK)
	v.SetDefault("synth.top_p", c.Synth.TopP)
	v.SetDefault("synth.seed", c.Synth.Seed)
	v.SetDefault("synth.max_steps", c.Synth.MaxSteps)
	v.SetDefault("synth.generation_reserve", c.Synth.GenerationReserve)
	v.SetDefault("synth.chunk_frames", c.Synth.ChunkFrames)
	v.SetDefault("synth.overlap_frames", c.Synth.OverlapFrames)
	v.SetDefault("synth.crossfade_ms", c.Synth.CrossfadeMS)
	v.SetDefault("synth.queue_depth", c.Synth.QueueDepth)
	v.SetDefault("synth.watermark_key", c.Synth.WatermarkKey)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("reference.min_seconds", c.Reference.MinSeconds)
	v.SetDefault("reference.max_seconds", c.Reference.MaxSeconds)
	v.SetDefault("reference.cache_size", c.Reference.CacheSize)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.tokenizer_path", "paths-tokenizer-path")
	v.RegisterAlias("paths.reference_dir", "paths-reference-dir")
	v.RegisterAlias("backbone.backend", "backbone-backend")
	v.RegisterAlias("backbone.model_path", "backbone-model-path")
	v.RegisterAlias("backbone.command", "backbone-command")
	v.RegisterAlias("backbone.ort_library_path", "backbone-ort-library-path")
	v.RegisterAlias("backbone.ort_library_path", "ort-lib")
	v.RegisterAlias("backbone.threads", "backbone-threads")
	v.RegisterAlias("backbone.context_size", "backbone-context-size")
	v.RegisterAlias("codec.backend", "codec-backend")
	v.RegisterAlias("codec.model_path", "codec-model-path")
	v.RegisterAlias("codec.ort_library_path", "codec-ort-library-path")
	v.RegisterAlias("codec.threads", "codec-threads")
	v.RegisterAlias("phoneme.command", "phoneme-command")
	v.RegisterAlias("phoneme.language", "phoneme-language")
	v.RegisterAlias("synth.temperature", "synth-temperature")
	v.RegisterAlias("synth.top_k", "synth-top-k")
	v.RegisterAlias("synth.top_p", "synth-top-p")
	v.RegisterAlias("synth.seed", "synth-seed")
	v.RegisterAlias("synth.max_steps", "synth-max-steps")
	v.RegisterAlias("synth.chunk_frames", "synth-chunk-frames")
	v.RegisterAlias("synth.overlap_frames", "synth-overlap-frames")
	v.RegisterAlias("synth.crossfade_ms", "synth-crossfade-ms")
	v.RegisterAlias("synth.watermark_key", "synth-watermark-key")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.workers", "server-workers")
}
