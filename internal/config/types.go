package config

import "strings"

// Config is the process configuration, read once at startup from a JSON (or
// YAML) document. Topics are immutable after load; only the logging section
// is re-applied on a live reload.
type Config struct {
	// Host/Port for the webhook HTTP listener.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// Gateway holds the mirai-api-http websocket connection settings.
	Gateway GatewayConfig `json:"wsConfig"`

	Logging *LoggingConfig `json:"logging,omitempty"`

	// Debug optionally exposes pprof on its own listener.
	Debug *DebugConfig `json:"debug,omitempty"`

	Topics []Topic `json:"topics"`
}

// DebugConfig controls the optional pprof listener. Binding to a
// non-loopback address requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// GatewayConfig is the bot connection triple. All three fields are required;
// the gateway client refuses to construct without them.
type GatewayConfig struct {
	Addr      string `json:"addr"`
	VerifyKey string `json:"key"`
	QQ        int64  `json:"qq"`
}

// LoggingConfig mirrors pkg/logx.Config. If the section is omitted the
// defaults are console on, info level, error file enabled at ./errors.log.
type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled    *bool  `json:"enabled,omitempty"`
		Path       string `json:"path,omitempty"`
		RatePerSec int    `json:"rate_per_sec,omitempty"`
	} `json:"file,omitempty"`
}

// Topic is a named notification channel: who receives it and how callers
// must authenticate.
type Topic struct {
	ID      string   `json:"id"`
	Targets []Target `json:"targets"`
	Secure  Secure   `json:"secure"`
}

// Secure selects exactly one authentication method per topic.
//
// method "token":  callers present the shared secret verbatim.
// method "sigKey": callers present an HMAC-SHA256 signature keyed by the secret.
type Secure struct {
	Method string `json:"method"`
	Secret string `json:"secret"`
}

const (
	SecureToken  = "token"
	SecureSigKey = "sigKey"
)

// Target is one recipient: a friend (QQ number) or a group, plus the user
// ids to @-mention alongside the message.
type Target struct {
	Type   string  `json:"type"`
	Number int64   `json:"number"`
	At     []int64 `json:"at,omitempty"`
}

const (
	TargetFriend = "friend"
	TargetGroup  = "group"
)

const (
	defaultPort = 8000
)

// normalize applies defaults and drops malformed topic entries (a topic
// without an id is skipped, matching load-time behavior users rely on).
func (c *Config) normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	topics := c.Topics[:0]
	for _, t := range c.Topics {
		if strings.TrimSpace(t.ID) == "" {
			continue
		}
		topics = append(topics, t)
	}
	c.Topics = topics
}

// Logx maps the logging section onto pkg/logx configuration with defaults.
func (c *Config) Logx() LogxView {
	v := LogxView{Level: "info", Console: true, FileEnabled: true, FilePath: "./errors.log"}
	lc := c.Logging
	if lc == nil {
		return v
	}
	if strings.TrimSpace(lc.Level) != "" {
		v.Level = lc.Level
	}
	if lc.Console != nil {
		v.Console = *lc.Console
	}
	if lc.File.Enabled != nil {
		v.FileEnabled = *lc.File.Enabled
	}
	if strings.TrimSpace(lc.File.Path) != "" {
		v.FilePath = lc.File.Path
	}
	v.FileRatePerSec = lc.File.RatePerSec
	return v
}

// LogxView is the resolved logging configuration. It exists so internal/app
// does not need to re-implement the defaulting rules.
type LogxView struct {
	Level          string
	Console        bool
	FileEnabled    bool
	FilePath       string
	FileRatePerSec int
}
