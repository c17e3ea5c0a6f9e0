package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iogw.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `device = "tcp://127.0.0.1:7000"`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "iogw" {
		t.Fatalf("name = %q", cfg.Name)
	}
	if cfg.BufferSize != 4096 || cfg.ReadTimeout != 500*time.Millisecond {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.FirstByteTimeout != cfg.ReadTimeout {
		t.Fatalf("first-byte timeout should default to the read timeout")
	}
	if cfg.Framer.Type != "terminated" || !bytes.Equal(cfg.Framer.Terminator, []byte{'\n'}) {
		t.Fatalf("framer defaults: %+v", cfg.Framer)
	}
	if cfg.NATSURL != "" || cfg.RedisAddr != "" {
		t.Fatalf("messaging should default to disabled: %+v", cfg)
	}
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
name = "gps0"
device = "serial:///dev/ttyUSB0:115200"
buffer_size = 8192
extract_last = true
read_timeout = "250ms"
first_byte_timeout = "50ms"
listen = ":9300"
cors_origins = ["http://localhost:3000"]

[framer]
type = "delimited"
start = "7878"
end = "0d0a"
max = 512

[nats]
url = "nats://127.0.0.1:4222"
subject = "fleet.gps0"

[redis]
addr = "127.0.0.1:6379"
presence_ttl = "1m"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "gps0" || !cfg.ExtractLast || cfg.BufferSize != 8192 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ReadTimeout != 250*time.Millisecond || cfg.FirstByteTimeout != 50*time.Millisecond {
		t.Fatalf("timeouts = %v / %v", cfg.ReadTimeout, cfg.FirstByteTimeout)
	}
	if !bytes.Equal(cfg.Framer.Start, []byte{0x78, 0x78}) || !bytes.Equal(cfg.Framer.End, []byte{0x0d, 0x0a}) {
		t.Fatalf("framer markers: %+v", cfg.Framer)
	}
	if cfg.NATSSubject != "fleet.gps0" || cfg.PresenceTTL != time.Minute {
		t.Fatalf("messaging config: %+v", cfg)
	}
	if buildExtractor(cfg.Framer) == nil {
		t.Fatal("extractor should build")
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing device":   `name = "x"`,
		"tiny buffer":      "device = \"tcp://h:1\"\nbuffer_size = 4",
		"bad timeout":      "device = \"tcp://h:1\"\nread_timeout = \"soon\"",
		"negative timeout": "device = \"tcp://h:1\"\nread_timeout = \"-1s\"",
		"unknown framer":   "device = \"tcp://h:1\"\n[framer]\ntype = \"csv\"",
		"delimited without markers": "device = \"tcp://h:1\"\n[framer]\ntype = \"delimited\"",
		"bad marker hex":            "device = \"tcp://h:1\"\n[framer]\ntype = \"delimited\"\nstart = \"zz\"\nend = \"0a\"",
		"lengthprefix without header": "device = \"tcp://h:1\"\n[framer]\ntype = \"lengthprefix\"",
		"length field outside header": "device = \"tcp://h:1\"\n[framer]\ntype = \"lengthprefix\"\nheader_len = 2\nlength_offset = 1\nlength_size = 2\nmax = 64",
	}
	for name, body := range cases {
		if _, err := loadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseMarkerLiterals(t *testing.T) {
	b, err := parseMarker("str:\r\n")
	if err != nil || !bytes.Equal(b, []byte("\r\n")) {
		t.Fatalf("literal marker: %v %v", b, err)
	}
	b, err = parseMarker("0d0a")
	if err != nil || !bytes.Equal(b, []byte{0x0d, 0x0a}) {
		t.Fatalf("hex marker: %v %v", b, err)
	}
	if _, err := parseMarker("nothex"); err == nil {
		t.Fatal("expected error for bad marker")
	}
}
