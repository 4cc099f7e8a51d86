package postgres

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the Postgres slice of the database settings. ConnString wins
// over the individual fields.
type Config struct {
	ConnString string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	PingTimeout     time.Duration
}

// DSN returns ConnString when set, otherwise a postgres:// URL built from the
// individual fields.
func (c *Config) DSN() string {
	if s := strings.TrimSpace(c.ConnString); s != "" {
		return s
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + c.DBName,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// redactedDSN is safe to log.
func redactedDSN(cfg *Config) string {
	u, err := url.Parse(cfg.DSN())
	if err != nil || u.User == nil {
		return fmt.Sprintf("%s:%s/%s", cfg.Host, cfg.Port, cfg.DBName)
	}
	return u.Redacted()
}
