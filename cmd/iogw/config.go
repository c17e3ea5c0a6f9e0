package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	driverbase "github.com/Brazilian-Institute-of-Robotics/ros-driver-base"
	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/framer"
)

type gatewayConfig struct {
	Name             string
	Device           string
	BufferSize       int
	ExtractLast      bool
	ReadTimeout      time.Duration
	FirstByteTimeout time.Duration
	Listen           string
	CorsOrigins      []string

	Framer framerConfig

	NATSURL     string
	NATSSubject string

	RedisAddr   string
	PresenceTTL time.Duration
}

type framerConfig struct {
	Type         string
	Terminator   []byte
	Start        []byte
	End          []byte
	Magic        []byte
	HeaderLen    int
	LengthOffset int
	LengthSize   int
	LengthAdjust int
	Max          int
}

func defaultConfig() gatewayConfig {
	return gatewayConfig{
		Name:             "iogw",
		BufferSize:       4096,
		ReadTimeout:      500 * time.Millisecond,
		FirstByteTimeout: 500 * time.Millisecond,
		Listen:           ":9200",
		NATSSubject:      "iogw.packets",
		PresenceTTL:      30 * time.Second,
		Framer: framerConfig{
			Type:       "terminated",
			Terminator: []byte{'\n'},
			Max:        1024,
		},
	}
}

type fileConfig struct {
	Name             string   `toml:"name"`
	Device           string   `toml:"device"`
	BufferSize       int      `toml:"buffer_size"`
	ExtractLast      bool     `toml:"extract_last"`
	ReadTimeout      string   `toml:"read_timeout"`
	FirstByteTimeout string   `toml:"first_byte_timeout"`
	Listen           string   `toml:"listen"`
	CorsOrigins      []string `toml:"cors_origins"`

	Framer fileFramerConfig `toml:"framer"`
	NATS   fileNATSConfig   `toml:"nats"`
	Redis  fileRedisConfig  `toml:"redis"`
}

type fileFramerConfig struct {
	Type         string `toml:"type"`
	Terminator   string `toml:"terminator"`
	Start        string `toml:"start"`
	End          string `toml:"end"`
	Magic        string `toml:"magic"`
	HeaderLen    int    `toml:"header_len"`
	LengthOffset int    `toml:"length_offset"`
	LengthSize   int    `toml:"length_size"`
	LengthAdjust int    `toml:"length_adjust"`
	Max          int    `toml:"max"`
}

type fileNATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type fileRedisConfig struct {
	Addr        string `toml:"addr"`
	PresenceTTL string `toml:"presence_ttl"`
}

func loadConfig(path string) (gatewayConfig, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return gatewayConfig{}, fmt.Errorf("load gateway config: %w", err)
	}

	if meta.IsDefined("name") && strings.TrimSpace(raw.Name) != "" {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	cfg.Device = strings.TrimSpace(raw.Device)
	if cfg.Device == "" {
		return gatewayConfig{}, fmt.Errorf("gateway config: device is required")
	}
	if meta.IsDefined("buffer_size") {
		if raw.BufferSize < driverbase.MinInternalBufferSize {
			return gatewayConfig{}, fmt.Errorf("gateway config: buffer_size must be at least %d", driverbase.MinInternalBufferSize)
		}
		cfg.BufferSize = raw.BufferSize
	}
	cfg.ExtractLast = raw.ExtractLast
	if meta.IsDefined("read_timeout") {
		if cfg.ReadTimeout, err = parseTimeout(raw.ReadTimeout); err != nil {
			return gatewayConfig{}, fmt.Errorf("gateway config: read_timeout: %w", err)
		}
		cfg.FirstByteTimeout = cfg.ReadTimeout
	}
	if meta.IsDefined("first_byte_timeout") {
		if cfg.FirstByteTimeout, err = parseTimeout(raw.FirstByteTimeout); err != nil {
			return gatewayConfig{}, fmt.Errorf("gateway config: first_byte_timeout: %w", err)
		}
	}
	if meta.IsDefined("listen") && strings.TrimSpace(raw.Listen) != "" {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	cfg.CorsOrigins = raw.CorsOrigins

	if meta.IsDefined("framer") {
		if cfg.Framer, err = parseFramerConfig(raw.Framer); err != nil {
			return gatewayConfig{}, fmt.Errorf("gateway config: framer: %w", err)
		}
	}

	cfg.NATSURL = strings.TrimSpace(raw.NATS.URL)
	if meta.IsDefined("nats", "subject") && strings.TrimSpace(raw.NATS.Subject) != "" {
		cfg.NATSSubject = strings.TrimSpace(raw.NATS.Subject)
	}
	cfg.RedisAddr = strings.TrimSpace(raw.Redis.Addr)
	if meta.IsDefined("redis", "presence_ttl") {
		if cfg.PresenceTTL, err = parseTimeout(raw.Redis.PresenceTTL); err != nil {
			return gatewayConfig{}, fmt.Errorf("gateway config: presence_ttl: %w", err)
		}
	}

	return cfg, nil
}

func parseTimeout(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func parseFramerConfig(raw fileFramerConfig) (framerConfig, error) {
	cfg := framerConfig{
		Type:         strings.ToLower(strings.TrimSpace(raw.Type)),
		HeaderLen:    raw.HeaderLen,
		LengthOffset: raw.LengthOffset,
		LengthSize:   raw.LengthSize,
		LengthAdjust: raw.LengthAdjust,
		Max:          raw.Max,
	}
	if cfg.Max == 0 {
		cfg.Max = 1024
	}

	var err error
	switch cfg.Type {
	case "terminated":
		if cfg.Terminator, err = parseMarker(raw.Terminator); err != nil {
			return framerConfig{}, fmt.Errorf("terminator: %w", err)
		}
		if len(cfg.Terminator) == 0 {
			cfg.Terminator = []byte{'\n'}
		}
	case "delimited":
		if cfg.Start, err = parseMarker(raw.Start); err != nil {
			return framerConfig{}, fmt.Errorf("start: %w", err)
		}
		if cfg.End, err = parseMarker(raw.End); err != nil {
			return framerConfig{}, fmt.Errorf("end: %w", err)
		}
		if len(cfg.Start) == 0 || len(cfg.End) == 0 {
			return framerConfig{}, fmt.Errorf("start and end markers are required")
		}
	case "lengthprefix":
		if cfg.Magic, err = parseMarker(raw.Magic); err != nil {
			return framerConfig{}, fmt.Errorf("magic: %w", err)
		}
		if cfg.HeaderLen <= 0 {
			return framerConfig{}, fmt.Errorf("header_len is required")
		}
		if cfg.LengthSize == 0 {
			cfg.LengthSize = 2
		}
		switch cfg.LengthSize {
		case 1, 2, 4:
		default:
			return framerConfig{}, fmt.Errorf("length_size must be 1, 2 or 4")
		}
		if cfg.LengthOffset+cfg.LengthSize > cfg.HeaderLen {
			return framerConfig{}, fmt.Errorf("length field does not fit in header")
		}
		if cfg.Max < cfg.HeaderLen {
			return framerConfig{}, fmt.Errorf("max smaller than header_len")
		}
	default:
		return framerConfig{}, fmt.Errorf("unknown framer type %q", raw.Type)
	}
	return cfg, nil
}

// parseMarker decodes a marker given as hex ("7878") or, prefixed with
// "str:", as literal text.
func parseMarker(raw string) ([]byte, error) {
	if lit, ok := strings.CutPrefix(strings.TrimLeft(raw, " \t"), "str:"); ok {
		return []byte(lit), nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("marker %q is neither hex nor str: literal", raw)
	}
	return b, nil
}

func buildExtractor(cfg framerConfig) driverbase.FrameExtractor {
	switch cfg.Type {
	case "delimited":
		return framer.Delimited(cfg.Start, cfg.End, cfg.Max)
	case "lengthprefix":
		return framer.LengthPrefix(framer.LengthPrefixConfig{
			Magic:        cfg.Magic,
			HeaderLen:    cfg.HeaderLen,
			LengthOffset: cfg.LengthOffset,
			LengthSize:   cfg.LengthSize,
			LengthAdjust: cfg.LengthAdjust,
			Max:          cfg.Max,
		})
	default:
		return framer.Terminated(cfg.Terminator, cfg.Max)
	}
}
