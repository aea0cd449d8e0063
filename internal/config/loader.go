package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Broker captures the connection settings for the message broker.
type Broker struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// UnmarshalYAML decodes broker settings on top of the defaults already in
// place. The retry delay travels as a Go duration string ("2s").
func (b *Broker) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Host          string `yaml:"host"`
		Port          int    `yaml:"port"`
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
		RetryAttempts int    `yaml:"retry_attempts"`
		RetryDelay    string `yaml:"retry_delay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Host != "" {
		b.Host = raw.Host
	}
	if raw.Port != 0 {
		b.Port = raw.Port
	}
	if raw.Username != "" {
		b.Username = raw.Username
	}
	if raw.Password != "" {
		b.Password = raw.Password
	}
	if raw.RetryAttempts != 0 {
		b.RetryAttempts = raw.RetryAttempts
	}
	if raw.RetryDelay != "" {
		delay, err := time.ParseDuration(raw.RetryDelay)
		if err != nil || delay <= 0 {
			return fmt.Errorf("invalid broker retry_delay %q", raw.RetryDelay)
		}
		b.RetryDelay = delay
	}
	return nil
}

// URL renders the broker settings as an AMQP connection string.
func (b Broker) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(b.Username, b.Password),
		Host:   fmt.Sprintf("%s:%d", b.Host, b.Port),
		Path:   "/",
	}
	return u.String()
}

// Config captures configuration values shared by the timetable services.
type Config struct {
	HTTPPort         int    `yaml:"http_port"`
	AnalyticsPort    int    `yaml:"analytics_port"`
	SQLiteDSN        string `yaml:"sqlite_dsn"`
	Broker           Broker `yaml:"broker"`
	NotificationLog  string `yaml:"notification_log"`
	StatsLogSchedule string `yaml:"stats_log_schedule"`
}

// Load resolves configuration in two passes: an optional YAML file named by
// TIMETABLE_CONFIG_FILE first, then TIMETABLE_* environment variables on top.
// Environment always wins so deployments can override a shared file.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		AnalyticsPort: 8081,
		SQLiteDSN:     "file:timetable.db?_foreign_keys=on",
		Broker: Broker{
			Host:          "localhost",
			Port:          5672,
			Username:      "guest",
			Password:      "guest",
			RetryAttempts: 15,
			RetryDelay:    2 * time.Second,
		},
		NotificationLog:  "notifications.log",
		StatsLogSchedule: "@every 60s",
	}

	if path := strings.TrimSpace(os.Getenv("TIMETABLE_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	invalid := make([]string, 0, 2)

	applyPort(&cfg.HTTPPort, "TIMETABLE_HTTP_PORT", &invalid)
	applyPort(&cfg.AnalyticsPort, "TIMETABLE_ANALYTICS_PORT", &invalid)

	if dsn := strings.TrimSpace(os.Getenv("TIMETABLE_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if host := strings.TrimSpace(os.Getenv("TIMETABLE_BROKER_HOST")); host != "" {
		cfg.Broker.Host = host
	}
	applyPort(&cfg.Broker.Port, "TIMETABLE_BROKER_PORT", &invalid)
	if username := strings.TrimSpace(os.Getenv("TIMETABLE_BROKER_USERNAME")); username != "" {
		cfg.Broker.Username = username
	}
	if password := os.Getenv("TIMETABLE_BROKER_PASSWORD"); password != "" {
		cfg.Broker.Password = password
	}

	if attemptsValue := strings.TrimSpace(os.Getenv("TIMETABLE_BROKER_RETRY_ATTEMPTS")); attemptsValue != "" {
		attempts, err := strconv.Atoi(attemptsValue)
		if err != nil || attempts <= 0 {
			invalid = append(invalid, "TIMETABLE_BROKER_RETRY_ATTEMPTS")
		} else {
			cfg.Broker.RetryAttempts = attempts
		}
	}
	if delayValue := strings.TrimSpace(os.Getenv("TIMETABLE_BROKER_RETRY_DELAY")); delayValue != "" {
		delay, err := time.ParseDuration(delayValue)
		if err != nil || delay <= 0 {
			invalid = append(invalid, "TIMETABLE_BROKER_RETRY_DELAY")
		} else {
			cfg.Broker.RetryDelay = delay
		}
	}

	if path := strings.TrimSpace(os.Getenv("TIMETABLE_NOTIFICATION_LOG")); path != "" {
		cfg.NotificationLog = path
	}
	if schedule := strings.TrimSpace(os.Getenv("TIMETABLE_STATS_LOG_SCHEDULE")); schedule != "" {
		cfg.StatsLogSchedule = schedule
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyPort(target *int, key string, invalid *[]string) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return
	}
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		*invalid = append(*invalid, key)
		return
	}
	*target = port
}
