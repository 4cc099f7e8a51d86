package cache

import "time"

// Config describes the Redis endpoint backing the run lock. URL takes
// precedence over the discrete fields.
type Config struct {
	URL          string
	Host         string
	Port         string
	Password     string
	DB           int
	TLSEnabled   bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}
