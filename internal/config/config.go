package config

import (
	"fmt"
	"log"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the overall application configuration.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL"    default:"info"`
	Server      ServerConfig
	Delivery    DeliveryConfig
	Admin       AdminConfig
}

// ServerConfig holds the SMPP listener configuration.
type ServerConfig struct {
	Addr     string `envconfig:"SERVER_ADDR"      default:"0.0.0.0:2775"`
	SystemID string `envconfig:"SERVER_SYSTEM_ID" default:"smscd"`
	MaxBinds int    `envconfig:"SERVER_MAX_BINDS" default:"0"`
	// MinThreads and MaxThreads are validated as a range; the connection
	// dispatch pool is sized by MaxThreads alone.
	MinThreads       int           `envconfig:"SERVER_MIN_THREADS"        default:"4"`
	MaxThreads       int           `envconfig:"SERVER_MAX_THREADS"        default:"64"`
	IdleTimeout      time.Duration `envconfig:"SERVER_IDLE_TIMEOUT"       default:"10m"`
	WriteLockTime    time.Duration `envconfig:"SERVER_WRITE_LOCK_TIME"    default:"10s"`
	MaxBindFailures  int           `envconfig:"SERVER_MAX_BIND_FAILURES"  default:"3"`
	BindFailureDelay time.Duration `envconfig:"SERVER_BIND_FAILURE_DELAY" default:"5s"`

	// AllowedNets and DeniedNets are CIDR lists applied at accept time.
	// BlockedAddrs is the deprecated predecessor of DeniedNets; setting
	// it together with either net list is a startup error.
	AllowedNets  []string `envconfig:"SERVER_ALLOWED_NETS"`
	DeniedNets   []string `envconfig:"SERVER_DENIED_NETS"`
	BlockedAddrs []string `envconfig:"SERVER_BLOCKED_ADDRS"`

	TLSCertFile     string   `envconfig:"SERVER_TLS_CERT_FILE"`
	TLSKeyFile      string   `envconfig:"SERVER_TLS_KEY_FILE"`
	TLSClientCAFile string   `envconfig:"SERVER_TLS_CLIENT_CA_FILE"`
	TLSCipherSuites []string `envconfig:"SERVER_TLS_CIPHER_SUITES"`
	ProxyProtocol   bool     `envconfig:"SERVER_PROXY_PROTOCOL"    default:"false"`

	allowedNets []*net.IPNet
	deniedNets  []*net.IPNet
}

// DeliveryConfig holds the two-tier delivery scheduler configuration.
type DeliveryConfig struct {
	ManagerThreads int `envconfig:"DELIVERY_MANAGER_THREADS"`
	// MinDeliveryThreads and MaxDeliveryThreads are validated as a
	// range; the delivery pool is sized by MaxDeliveryThreads alone.
	MinDeliveryThreads int           `envconfig:"DELIVERY_MIN_THREADS"    default:"2"`
	MaxDeliveryThreads int           `envconfig:"DELIVERY_MAX_THREADS"    default:"16"`
	PollTime           time.Duration `envconfig:"DELIVERY_POLL_TIME"      default:"15s"`
	// RetryPeriods is a comma-separated list of durations, e.g.
	// "30s,2m,10m". Kept for configurations that still set it; the
	// scheduler reschedules at the flat PollTime.
	RetryPeriods string `envconfig:"DELIVERY_RETRY_PERIODS"`

	retryPeriods []time.Duration
}

// AdminConfig holds the HTTP admin/metrics surface configuration.
type AdminConfig struct {
	Addr         string        `envconfig:"ADMIN_ADDR"          default:"0.0.0.0:8000"`
	ReadTimeout  time.Duration `envconfig:"ADMIN_READ_TIMEOUT"  default:"10s"`
	WriteTimeout time.Duration `envconfig:"ADMIN_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `envconfig:"ADMIN_IDLE_TIMEOUT"  default:"60s"`
}

// AllowedNets returns the parsed allow list. Empty means allow all.
func (s *ServerConfig) AllowedIPNets() []*net.IPNet { return s.allowedNets }

// DeniedIPNets returns the parsed deny list.
func (s *ServerConfig) DeniedIPNets() []*net.IPNet { return s.deniedNets }

// RetryPeriodList returns the parsed retry periods.
func (d *DeliveryConfig) RetryPeriodList() []time.Duration { return d.retryPeriods }

// Load reads configuration from environment variables and fails fast on
// anything a running server could not sensibly interpret.
func Load() (*Config, error) {
	var cfg Config
	log.Println("Loading configuration from environment variables...")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, skipping: %v", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Printf("Configuration loaded successfully (Server Addr: %s)", cfg.Server.Addr)
	return &cfg, nil
}

func (c *Config) validate() error {
	s := &c.Server
	if len(s.BlockedAddrs) > 0 && (len(s.AllowedNets) > 0 || len(s.DeniedNets) > 0) {
		return fmt.Errorf("config: SERVER_BLOCKED_ADDRS is superseded by SERVER_DENIED_NETS and cannot be combined with the net lists")
	}
	if len(s.BlockedAddrs) > 0 {
		log.Println("SERVER_BLOCKED_ADDRS is deprecated, use SERVER_DENIED_NETS")
	}
	var err error
	if s.allowedNets, err = parseNets(s.AllowedNets); err != nil {
		return fmt.Errorf("config: SERVER_ALLOWED_NETS: %w", err)
	}
	denied := s.DeniedNets
	for _, addr := range s.BlockedAddrs {
		// Bare addresses become host routes.
		if !strings.Contains(addr, "/") {
			if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
				addr += "/32"
			} else {
				addr += "/128"
			}
		}
		denied = append(denied, addr)
	}
	if s.deniedNets, err = parseNets(denied); err != nil {
		return fmt.Errorf("config: SERVER_DENIED_NETS: %w", err)
	}

	if s.MinThreads < 1 || s.MaxThreads < s.MinThreads {
		return fmt.Errorf("config: server thread bounds %d..%d are not a valid range", s.MinThreads, s.MaxThreads)
	}
	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("config: SERVER_TLS_CERT_FILE and SERVER_TLS_KEY_FILE must be set together")
	}

	d := &c.Delivery
	if d.ManagerThreads <= 0 {
		d.ManagerThreads = runtime.NumCPU()
	}
	if d.MinDeliveryThreads < 1 || d.MaxDeliveryThreads < d.MinDeliveryThreads {
		return fmt.Errorf("config: delivery thread bounds %d..%d are not a valid range", d.MinDeliveryThreads, d.MaxDeliveryThreads)
	}
	if d.PollTime <= 0 {
		return fmt.Errorf("config: DELIVERY_POLL_TIME must be positive")
	}
	if d.RetryPeriods != "" {
		for _, part := range strings.Split(d.RetryPeriods, ",") {
			p, err := time.ParseDuration(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("config: DELIVERY_RETRY_PERIODS: %w", err)
			}
			if p <= 0 {
				return fmt.Errorf("config: DELIVERY_RETRY_PERIODS: period %q must be positive", part)
			}
			d.retryPeriods = append(d.retryPeriods, p)
		}
	}
	return nil
}

func parseNets(cidrs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(strings.TrimSpace(c))
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	return nets, nil
}
