package client

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxbase/flux-go/pkg/wirelog"
)

// Config configures a client. The YAML form lets mobile shims ship a
// checked-in deployment config next to the binary.
type Config struct {
	// DeploymentURL is the deployment to connect to,
	// e.g. "https://quiet-lemur-123.flux.site".
	DeploymentURL string `yaml:"deployment_url"`

	// RequestTimeout bounds each one-shot call (default: 30s).
	RequestTimeout Duration `yaml:"request_timeout"`

	// PingInterval is the keepalive interval on the persistent connection
	// (default: 30s).
	PingInterval Duration `yaml:"ping_interval"`

	// JournalPath, when set, enables the CBOR wire journal at this path.
	JournalPath string `yaml:"journal_path"`

	// Logger receives client diagnostics. Nil means slog.Default.
	Logger *slog.Logger `yaml:"-"`

	// Journal receives wire events. Takes precedence over JournalPath.
	Journal wirelog.Logger `yaml:"-"`
}

// LoadConfig reads a Config from a YAML file. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML emits Go duration syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
