// Package connstr parses SQL Server connection strings into a structured
// config and establishes live connections with an ordered strategy fallback.
package connstr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

const (
	// DefaultPort is the standard SQL Server port, applied when neither an
	// explicit port nor a named instance is present.
	DefaultPort = 1433

	// CloudHostSuffix marks Azure SQL hosts. Such hosts always get
	// Encrypt=true and TrustServerCertificate=false regardless of explicit
	// flags elsewhere in the string.
	CloudHostSuffix = ".database.windows.net"
)

// Config is the structured form of a connection string. Exactly one credential
// mode is set: username/password, or IntegratedAuth. Immutable after Parse
// except for database rewriting done by provisioning via WithDatabase.
type Config struct {
	Host            string
	Instance        string
	Port            int
	Database        string
	Username        string
	Password        string
	IntegratedAuth  bool
	Encrypt         bool
	TrustServerCert bool
	ConnectTimeout  time.Duration
}

// Parse tokenizes an ADO-style connection string (semicolon-separated
// key=value pairs, case-insensitive keys) into a Config. Unrecognized keys are
// ignored. A missing host or an untokenizable segment yields
// utils.ErrBadConnectionString.
func Parse(raw string) (*Config, error) {
	cfg := &Config{}
	explicitPort := false

	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		key, value, found := strings.Cut(segment, "=")
		if !found {
			return nil, fmt.Errorf("%w: segment %q is not a key=value pair", utils.ErrBadConnectionString, segment)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "server", "data source":
			host, instance, hasInstance := strings.Cut(value, `\`)
			cfg.Host = host
			if hasInstance {
				cfg.Instance = instance
			}
		case "database", "initial catalog":
			cfg.Database = value
		case "user id", "uid":
			cfg.Username = value
		case "password", "pwd":
			cfg.Password = value
		case "trusted_connection":
			if parseBool(value) {
				cfg.IntegratedAuth = true
			}
		case "trustservercertificate":
			cfg.TrustServerCert = parseBool(value)
		case "encrypt":
			cfg.Encrypt = parseBool(value)
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: port %q is not a number", utils.ErrBadConnectionString, value)
			}
			cfg.Port = port
			explicitPort = true
		case "connect timeout", "connection timeout":
			if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
				cfg.ConnectTimeout = time.Duration(seconds) * time.Second
			}
		}
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: no server specified", utils.ErrBadConnectionString)
	}

	// Integrated auth wins over any username/password pairs in the string.
	if cfg.IntegratedAuth {
		cfg.Username = ""
		cfg.Password = ""
	}

	// The cloud override is order-independent: it applies once the host is
	// known, regardless of explicit encrypt/trust flags seen earlier.
	if IsCloudHost(cfg.Host) {
		cfg.Encrypt = true
		cfg.TrustServerCert = false
	}

	// Named instances resolve their port through the browser service, so no
	// default applies unless one was spelled out.
	if !explicitPort && cfg.Instance == "" && cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	return cfg, nil
}

// IsCloudHost reports whether host is a recognized cloud-hosted server.
func IsCloudHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), CloudHostSuffix)
}

// WithDatabase returns a copy of the config targeting a different database.
func (c *Config) WithDatabase(name string) *Config {
	clone := *c
	clone.Database = name
	return &clone
}

// String re-serializes the config into an ADO-style connection string that
// Parse accepts back into an equivalent config.
func (c *Config) String() string {
	var parts []string

	server := c.Host
	if c.Instance != "" {
		server += `\` + c.Instance
	}
	parts = append(parts, "Server="+server)

	if c.Port != 0 && c.Instance == "" {
		parts = append(parts, "Port="+strconv.Itoa(c.Port))
	}
	if c.Database != "" {
		parts = append(parts, "Database="+c.Database)
	}
	if c.IntegratedAuth {
		parts = append(parts, "Trusted_Connection=True")
	} else {
		if c.Username != "" {
			parts = append(parts, "User Id="+c.Username)
		}
		if c.Password != "" {
			parts = append(parts, "Password="+c.Password)
		}
	}
	parts = append(parts, "Encrypt="+formatBool(c.Encrypt))
	parts = append(parts, "TrustServerCertificate="+formatBool(c.TrustServerCert))
	if c.ConnectTimeout > 0 {
		parts = append(parts, "Connect Timeout="+strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}

	return strings.Join(parts, ";")
}

// URL builds the sqlserver:// DSN used by the structured connection strategy.
func (c *Config) URL() string {
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   c.Host,
	}
	if c.Port != 0 && c.Instance == "" {
		u.Host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	if c.Instance != "" {
		u.Path = c.Instance
	}
	if !c.IntegratedAuth && c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}

	q := url.Values{}
	if c.Database != "" {
		q.Set("database", c.Database)
	}
	q.Set("encrypt", formatBool(c.Encrypt))
	q.Set("trustservercertificate", formatBool(c.TrustServerCert))
	if c.ConnectTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// SetDatabase rewrites the database field of a raw connection string,
// preserving every other segment verbatim. If no database segment exists one
// is appended. Downstream phases must target the database that was actually
// provisioned, which may differ from the requested name.
func SetDatabase(raw, name string) string {
	segments := strings.Split(raw, ";")
	replaced := false

	out := make([]string, 0, len(segments)+1)
	for _, segment := range segments {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		key, _, found := strings.Cut(trimmed, "=")
		if found {
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "database", "initial catalog":
				out = append(out, strings.TrimSpace(key)+"="+name)
				replaced = true
				continue
			}
		}
		out = append(out, trimmed)
	}
	if !replaced {
		out = append(out, "Database="+name)
	}

	return strings.Join(out, ";")
}

// Redact masks password values in a raw connection string so it is safe to
// log. Secrets must never appear in logs in cleartext.
func Redact(raw string) string {
	segments := strings.Split(raw, ";")

	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		key, _, found := strings.Cut(trimmed, "=")
		if found {
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "password", "pwd":
				out = append(out, strings.TrimSpace(key)+"=*****")
				continue
			}
		}
		out = append(out, trimmed)
	}

	return strings.Join(out, ";")
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
