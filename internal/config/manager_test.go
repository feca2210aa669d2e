package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const jsonConfig = `{
  "host": "127.0.0.1",
  "wsConfig": {"addr": "ws://localhost:8080", "key": "verify", "qq": 123456},
  "topics": [
    {
      "id": "deploy",
      "secure": {"method": "token", "secret": "tok"},
      "targets": [{"type": "group", "number": 42, "at": [1, 2]}]
    },
    {
      "id": "",
      "secure": {"method": "token", "secret": "x"},
      "targets": []
    }
  ]
}`

const yamlConfig = `host: 127.0.0.1
wsConfig:
  addr: ws://localhost:8080
  key: verify
  qq: 123456
topics:
  - id: deploy
    secure:
      method: token
      secret: tok
    targets:
      - type: group
        number: 42
        at: [1, 2]
  - id: ""
    secure:
      method: token
      secret: x
    targets: []
`

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", jsonConfig)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != defaultPort {
		t.Fatalf("listener = %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Gateway.Addr != "ws://localhost:8080" || cfg.Gateway.QQ != 123456 {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
	// The id-less topic is dropped during normalization.
	if len(cfg.Topics) != 1 || cfg.Topics[0].ID != "deploy" {
		t.Fatalf("topics = %+v", cfg.Topics)
	}
	if tg := cfg.Topics[0].Targets[0]; tg.Type != TargetGroup || tg.Number != 42 || len(tg.At) != 2 {
		t.Fatalf("target = %+v", tg)
	}
}

func TestYAMLAndJSONAreEquivalent(t *testing.T) {
	jcfg, err := NewManager(writeFile(t, "config.json", jsonConfig)).Load()
	if err != nil {
		t.Fatalf("json Load error: %v", err)
	}
	ycfg, err := NewManager(writeFile(t, "config.yaml", yamlConfig)).Load()
	if err != nil {
		t.Fatalf("yaml Load error: %v", err)
	}
	if hashConfig(jcfg) != hashConfig(ycfg) {
		t.Fatalf("yaml and json configs differ:\n%+v\n%+v", jcfg, ycfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.json", `{"wsConfig": {}, "topics": [], "bogus": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeFile(t, "config.json", `{"wsConfig": {}, "topics": []}{"more": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("MIRAI_WEBHOOK_PORT", "9001")
	t.Setenv("MIRAI_WEBHOOK_WS_KEY", "env-key")

	cfg, err := NewManager(writeFile(t, "config.json", jsonConfig)).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("port = %d, want env override 9001", cfg.Port)
	}
	if cfg.Gateway.VerifyKey != "env-key" {
		t.Fatalf("verify key = %q, want env override", cfg.Gateway.VerifyKey)
	}
	// Unset variables leave file values alone.
	if cfg.Gateway.Addr != "ws://localhost:8080" {
		t.Fatalf("addr = %q", cfg.Gateway.Addr)
	}
}

func TestLogxDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	v := cfg.Logx()
	if v.Level != "info" || !v.Console || !v.FileEnabled || v.FilePath != "./errors.log" {
		t.Fatalf("defaults = %+v", v)
	}

	off := false
	cfg.Logging = &LoggingConfig{Level: "debug", Console: &off}
	v = cfg.Logx()
	if v.Level != "debug" || v.Console {
		t.Fatalf("overrides = %+v", v)
	}
	if !v.FileEnabled || v.FilePath != "./errors.log" {
		t.Fatalf("file defaults lost: %+v", v)
	}
}

func TestSubscribePublishDropsStale(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a := &Config{Port: 1}
	b := &Config{Port: 2}
	m.publish(a)
	m.publish(b)

	got := <-ch
	if got.Port != 2 {
		t.Fatalf("got stale config %d, want latest", got.Port)
	}
}
