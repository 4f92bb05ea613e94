// Package config loads the service configuration from a YAML file and
// MUDRA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/protocol"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MUDRA_"

// Config is the complete service and client configuration.
type Config struct {
	Server     ServerConfig           `yaml:"server"`
	Store      StoreConfig            `yaml:"store"`
	Logging    logging.Config         `yaml:"logging"`
	Classifier ClassifierConfig       `yaml:"classifier"`
	Debounce   gesture.DebounceConfig `yaml:"debounce"`
	Pipeline   PipelineConfig         `yaml:"pipeline"`
	Client     ClientConfig           `yaml:"client"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// FramedAddr, when set, also accepts length-framed TCP sessions.
	FramedAddr string `yaml:"framed_addr"`
	// FramedEncoding is the envelope encoding of framed sessions.
	FramedEncoding string `yaml:"framed_encoding"`
	StaticDir      string `yaml:"static_dir"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Path of the SQLite database. Empty disables persistence.
	Path string `yaml:"path"`
	// JournalQueue bounds the asynchronous journal write queue.
	JournalQueue int `yaml:"journal_queue"`
}

// ClassifierConfig selects and tunes the classifier.
type ClassifierConfig struct {
	// Kind is heuristic, template or noop.
	Kind       string             `yaml:"kind"`
	Thresholds gesture.Thresholds `yaml:"thresholds"`
	// FaceFilter rejects fists near the face when pose landmarks are sent.
	FaceFilter bool    `yaml:"face_filter"`
	FaceRadius float64 `yaml:"face_radius"`
}

// PipelineConfig tunes per-session processing.
type PipelineConfig struct {
	// SmoothingWindow is the landmark moving-average window. 1 disables it.
	SmoothingWindow int `yaml:"smoothing_window"`
}

// ClientConfig configures `mudra stream`.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	Encoding  string `yaml:"encoding"`
	FPS       int    `yaml:"fps"`
	// Source is replay or process.
	Source     string `yaml:"source"`
	ReplayPath string `yaml:"replay_path"`
	Loop       bool   `yaml:"loop"`
	// ExtractorCommand is the landmark extractor executable and arguments.
	ExtractorCommand []string      `yaml:"extractor_command"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	// PluginDir holds actuator plugins; Plugin names the one to use. An
	// empty Plugin logs commands instead of executing them.
	PluginDir string `yaml:"plugin_dir"`
	Plugin    string `yaml:"plugin"`
}

// Classifier kinds.
const (
	ClassifierHeuristic = "heuristic"
	ClassifierTemplate  = "template"
	ClassifierNoop      = "noop"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:8765",
			FramedEncoding: string(protocol.EncodingCBOR),
		},
		Store: StoreConfig{
			Path:         "mudra.db",
			JournalQueue: 256,
		},
		Logging: logging.DefaultConfig(),
		Classifier: ClassifierConfig{
			Kind:       ClassifierHeuristic,
			Thresholds: gesture.DefaultThresholds(),
			FaceRadius: 0.25,
		},
		Debounce: gesture.DefaultDebounceConfig(),
		Pipeline: PipelineConfig{SmoothingWindow: 1},
		Client: ClientConfig{
			ServerURL:   "ws://127.0.0.1:8765/ws",
			Encoding:    string(protocol.EncodingJSON),
			FPS:         30,
			Source:      "replay",
			IdleTimeout: 30 * time.Second,
			PluginDir:   "plugins",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file. envFile, when
// non-empty and present, is loaded into the environment first without
// overriding variables that are already set.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, err := protocol.ParseEncoding(c.Server.FramedEncoding); err != nil {
		return fmt.Errorf("server.framed_encoding: %w", err)
	}
	if c.Store.JournalQueue < 1 {
		return fmt.Errorf("store.journal_queue must be positive, got %d", c.Store.JournalQueue)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	switch c.Classifier.Kind {
	case ClassifierHeuristic, ClassifierTemplate, ClassifierNoop:
	default:
		return fmt.Errorf("classifier.kind must be heuristic, template or noop, got %q", c.Classifier.Kind)
	}
	t := c.Classifier.Thresholds
	if t.Fist <= 0 || t.Extension <= 0 || t.Pinch <= 0 {
		return errors.New("classifier thresholds must be positive")
	}
	if t.TwoFingerAngle <= 0 || t.TwoFingerAngle >= 180 {
		return fmt.Errorf("classifier.thresholds.two_finger_angle must be in (0, 180), got %v", t.TwoFingerAngle)
	}
	if c.Classifier.FaceFilter && c.Classifier.FaceRadius <= 0 {
		return errors.New("classifier.face_radius must be positive when face_filter is on")
	}

	if err := c.Debounce.Validate(); err != nil {
		return fmt.Errorf("debounce: %w", err)
	}
	if c.Pipeline.SmoothingWindow < 1 {
		return fmt.Errorf("pipeline.smoothing_window must be at least 1, got %d", c.Pipeline.SmoothingWindow)
	}
	if _, err := protocol.ParseEncoding(c.Client.Encoding); err != nil {
		return fmt.Errorf("client.encoding: %w", err)
	}
	if c.Client.FPS < 1 {
		return fmt.Errorf("client.fps must be positive, got %d", c.Client.FPS)
	}
	return nil
}

// applyEnv overlays MUDRA_* variables. Only operational settings are
// exposed; gesture tuning belongs in the file.
func applyEnv(c *Config) error {
	strs := map[string]*string{
		"SERVER_ADDR":       &c.Server.Addr,
		"FRAMED_ADDR":       &c.Server.FramedAddr,
		"STATIC_DIR":        &c.Server.StaticDir,
		"STORE_PATH":        &c.Store.Path,
		"LOG_LEVEL":         &c.Logging.Level,
		"LOG_FORMAT":        &c.Logging.Format,
		"CLASSIFIER":        &c.Classifier.Kind,
		"CLIENT_SERVER_URL": &c.Client.ServerURL,
		"CLIENT_ENCODING":   &c.Client.Encoding,
		"CLIENT_SOURCE":     &c.Client.Source,
		"CLIENT_REPLAY":     &c.Client.ReplayPath,
		"CLIENT_PLUGIN":     &c.Client.Plugin,
		"CLIENT_PLUGIN_DIR": &c.Client.PluginDir,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CLIENT_FPS":       &c.Client.FPS,
		"SMOOTHING_WINDOW": &c.Pipeline.SmoothingWindow,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := lookup("FACE_FILTER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sFACE_FILTER: %w", EnvPrefix, err)
		}
		c.Classifier.FaceFilter = b
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}
