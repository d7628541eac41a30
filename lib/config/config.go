// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable read by [Load].
const EnvVar = "CLUSTERBRIDGE_CONFIG"

// Config is the master configuration for the cluster bridge.
type Config struct {
	// Cluster identifies the API server and how to authenticate to it.
	Cluster ClusterConfig `yaml:"cluster"`

	// Client tunes the shared HTTP connection pool.
	Client ClientConfig `yaml:"client"`

	// Executor bounds request execution.
	Executor ExecutorConfig `yaml:"executor"`

	// Socket configures the controller-facing Unix socket.
	Socket SocketConfig `yaml:"socket"`

	// Log configures the daemon's logger.
	Log LogConfig `yaml:"log"`
}

// ClusterConfig identifies the cluster API server.
type ClusterConfig struct {
	// URL is the API server base URL, for example
	// https://10.0.0.1:6443. Only scheme and authority are used.
	URL string `yaml:"url"`

	// CAFile is a PEM bundle of CAs trusted for the API server. Empty
	// uses the system roots.
	CAFile string `yaml:"ca_file"`

	// CertFile and KeyFile are a PEM client certificate and key. Both
	// or neither must be set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ServerName overrides the name verified in the server
	// certificate.
	ServerName string `yaml:"server_name"`

	// InsecureSkipVerify disables server certificate verification.
	// Development clusters only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// BearerTokenFile holds a token sent as "Authorization: Bearer"
	// on requests that carry no Authorization header. The file is
	// re-read when it changes, so rotated service account tokens are
	// picked up.
	BearerTokenFile string `yaml:"bearer_token_file"`
}

// ClientConfig tunes the pooled HTTP transport.
type ClientConfig struct {
	// Default: 256
	MaxIdleConns int `yaml:"max_idle_conns"`

	// Default: 64
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// Default: 90s
	IdleConnTimeout Duration `yaml:"idle_conn_timeout"`

	// Default: 10s
	DialTimeout Duration `yaml:"dial_timeout"`

	// Default: 10s
	TLSHandshakeTimeout Duration `yaml:"tls_handshake_timeout"`
}

// ExecutorConfig bounds request execution.
type ExecutorConfig struct {
	// Workers is the number of requests executing at once.
	// Default: 64
	Workers int `yaml:"workers"`

	// RequestTimeout bounds one request including its body read.
	// Default: 30s
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxBodySize is the largest response body accepted, in bytes.
	// Default: 64 MiB
	MaxBodySize int64 `yaml:"max_body_size"`

	// ResultBuffer is the result sink capacity.
	// Default: 1024
	ResultBuffer int `yaml:"result_buffer"`

	// Compression is the envelope body compression: none, zstd, or lz4.
	// Default: none
	Compression string `yaml:"compression"`

	// MinCompressSize is the smallest body that is compressed.
	// Default: 1024
	MinCompressSize int `yaml:"min_compress_size"`
}

// SocketConfig configures the controller-facing socket.
type SocketConfig struct {
	// Path is the Unix socket path.
	// Default: /run/bureau/clusterbridge.sock
	Path string `yaml:"path"`

	// AllowedUIDs restricts which peer uids may connect. Empty allows
	// any peer that can open the socket.
	AllowedUIDs []uint32 `yaml:"allowed_uids"`

	// MaxFrameSize bounds one frame in either direction, in bytes.
	// Default: 64 MiB
	MaxFrameSize int64 `yaml:"max_frame_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text, json, or auto (text when stderr is a terminal,
	// json otherwise and always json when File is set).
	// Default: auto
	Format string `yaml:"format"`

	// File, when set, receives log records instead of stderr and is
	// rotated by size.
	File string `yaml:"file"`

	// Default: 100
	MaxSizeMB int `yaml:"max_size_mb"`

	// Default: 5
	MaxBackups int `yaml:"max_backups"`

	// Default: 28
	MaxAgeDays int `yaml:"max_age_days"`
}

// Duration is a time.Duration read from strings like "30s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the default configuration. Every field has a usable
// value except Cluster.URL, which the file must supply.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     Duration(90 * time.Second),
			DialTimeout:         Duration(10 * time.Second),
			TLSHandshakeTimeout: Duration(10 * time.Second),
		},
		Executor: ExecutorConfig{
			Workers:         64,
			RequestTimeout:  Duration(30 * time.Second),
			MaxBodySize:     64 << 20,
			ResultBuffer:    1024,
			Compression:     "none",
			MinCompressSize: 1024,
		},
		Socket: SocketConfig{
			Path:         "/run/bureau/clusterbridge.sock",
			MaxFrameSize: 64 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "auto",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from the file named by CLUSTERBRIDGE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your clusterbridge.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, overlaying [Default], and
// expands variables in path fields. It does not validate; call
// [Config.Validate] after applying any flag overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes configuration data. ext selects the syntax: ".json"
// and ".jsonc" are JSON with comments, anything else is YAML.
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		// JSON is a YAML subset once comments and trailing commas
		// are gone, so one decoder serves both.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parsing config: file is empty")
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Cluster.CAFile = expandVars(c.Cluster.CAFile)
	c.Cluster.CertFile = expandVars(c.Cluster.CertFile)
	c.Cluster.KeyFile = expandVars(c.Cluster.KeyFile)
	c.Cluster.BearerTokenFile = expandVars(c.Cluster.BearerTokenFile)
	c.Socket.Path = expandVars(c.Socket.Path)
	c.Log.File = expandVars(c.Log.File)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Cluster.URL == "" {
		errs = append(errs, errors.New("cluster.url is required"))
	} else if parsed, err := url.Parse(c.Cluster.URL); err != nil {
		errs = append(errs, fmt.Errorf("cluster.url: %w", err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("cluster.url must be http or https, got %q", c.Cluster.URL))
	} else if parsed.Host == "" {
		errs = append(errs, fmt.Errorf("cluster.url has no host: %q", c.Cluster.URL))
	}
	if (c.Cluster.CertFile == "") != (c.Cluster.KeyFile == "") {
		errs = append(errs, errors.New("cluster.cert_file and cluster.key_file must be set together"))
	}

	if c.Client.MaxIdleConns < 0 {
		errs = append(errs, errors.New("client.max_idle_conns must not be negative"))
	}
	if c.Client.MaxIdleConnsPerHost < 0 {
		errs = append(errs, errors.New("client.max_idle_conns_per_host must not be negative"))
	}
	if c.Client.DialTimeout < 0 || c.Client.TLSHandshakeTimeout < 0 || c.Client.IdleConnTimeout < 0 {
		errs = append(errs, errors.New("client timeouts must not be negative"))
	}

	if c.Executor.Workers <= 0 {
		errs = append(errs, fmt.Errorf("executor.workers must be positive, got %d", c.Executor.Workers))
	}
	if c.Executor.RequestTimeout <= 0 {
		errs = append(errs, errors.New("executor.request_timeout must be positive"))
	}
	if c.Executor.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("executor.max_body_size must be positive, got %d", c.Executor.MaxBodySize))
	}
	if c.Executor.ResultBuffer <= 0 {
		errs = append(errs, fmt.Errorf("executor.result_buffer must be positive, got %d", c.Executor.ResultBuffer))
	}
	if !contains([]string{"", "none", "zstd", "lz4"}, c.Executor.Compression) {
		errs = append(errs, fmt.Errorf("executor.compression must be one of none, zstd, lz4; got %q", c.Executor.Compression))
	}
	if c.Executor.MinCompressSize < 0 {
		errs = append(errs, errors.New("executor.min_compress_size must not be negative"))
	}

	if c.Socket.Path == "" {
		errs = append(errs, errors.New("socket.path is required"))
	}
	if c.Socket.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("socket.max_frame_size must be positive, got %d", c.Socket.MaxFrameSize))
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	if !contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json; got %q", c.Log.Format))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log rotation limits must not be negative"))
	}

	return errors.Join(errs...)
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
