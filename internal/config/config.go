// Package config loads runtime settings in three layers — built-in
// defaults, an optional .env file, then the process environment — per
// §8. None of this is a protocol feature; it replaces the C original's
// compile-time SIP_SERVER_IP_ADDRESS macro with something that can be
// pointed at a real interface without a recompile.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime-tunable knob.
type Config struct {
	Addr          string // UDP listen address, e.g. ":5060"
	Workers       int
	QueueCapacity int
	StatusAddr    string // HTTP status/metrics listen address, e.g. ":8080"
	LogLevel      string
	ServerHost    string // advertised host/IP used to build Via/Contact headers
	ServerPort    int
}

// Defaults matches §8: port 5060, 5 workers, queue capacity 10, status
// port 8080, log level info.
func Defaults() Config {
	return Config{
		Addr:          ":5060",
		Workers:       5,
		QueueCapacity: 10,
		StatusAddr:    ":8080",
		LogLevel:      "info",
		ServerHost:    "127.0.0.1",
		ServerPort:    5060,
	}
}

// Load builds a Config from defaults, then a .env file if present, then
// process environment variables, in that priority order (later wins).
func Load() Config {
	cfg := Defaults()

	_ = godotenv.Load()

	if v, ok := os.LookupEnv("TINYSIP_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("TINYSIP_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v, ok := os.LookupEnv("TINYSIP_QUEUE_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueCapacity = n
		}
	}
	if v, ok := os.LookupEnv("TINYSIP_STATUS_ADDR"); ok {
		cfg.StatusAddr = v
	}
	if v, ok := os.LookupEnv("TINYSIP_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("TINYSIP_SERVER_HOST"); ok {
		cfg.ServerHost = v
	}

	return cfg
}
