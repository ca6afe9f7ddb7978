package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"calcclient/internal/api"
	"calcclient/internal/calc"
)

// Config настройки клиента. Порядок: значения по умолчанию, YAML-файл, переменные окружения.
type Config struct {
	APIURL    string `yaml:"api_url"`
	APIPrefix string `yaml:"api_prefix"`
	SessionDB string `yaml:"session_db"`
	GRPCAddr  string `yaml:"grpc_addr"`
	PageSize  int    `yaml:"page_size"`

	HTTPTimeoutMs int `yaml:"http_timeout_ms"`

	Poll PollConfig `yaml:"poll"`
}

type PollConfig struct {
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	IntervalMs     int     `yaml:"interval_ms"`
	MaxIntervalMs  int     `yaml:"max_interval_ms"`
	Backoff        float64 `yaml:"backoff"`
	MaxAttempts    int     `yaml:"max_attempts"`
}

var envFiles = []string{".env", "../.env", "../../.env"}

func Default() Config {
	return Config{
		APIURL:        "http://localhost:8080",
		APIPrefix:     "/api",
		SessionDB:     filepath.Join(homeDir(), ".calcctl", "session.db"),
		GRPCAddr:      "localhost:8081",
		PageSize:      10,
		HTTPTimeoutMs: 30000,
		Poll: PollConfig{
			InitialDelayMs: 1000,
			IntervalMs:     2000,
			MaxIntervalMs:  10000,
			Backoff:        1.0,
			MaxAttempts:    150,
		},
	}
}

// Load читает .env, затем YAML-файл (если есть), затем окружение
func Load() (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err == nil {
			log.Printf("Загружен файл с переменными окружения: %s", file)
			break
		}
	}

	cfg := Default()

	path := getEnvOrDefault("CALC_CONFIG", filepath.Join(homeDir(), ".calcctl", "config.yaml"))
	if err := cfg.loadFile(path); err != nil {
		return cfg, err
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка чтения файла конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("ошибка разбора файла конфигурации %s: %w", path, err)
	}
	log.Printf("Загружен файл конфигурации: %s", path)
	return nil
}

func (c *Config) applyEnv() error {
	c.APIURL = getEnvOrDefault("CALC_API_URL", c.APIURL)
	c.APIPrefix = getEnvOrDefault("CALC_API_PREFIX", c.APIPrefix)
	c.SessionDB = getEnvOrDefault("CALC_SESSION_DB", c.SessionDB)
	c.GRPCAddr = getEnvOrDefault("CALC_GRPC_ADDR", c.GRPCAddr)

	ints := []struct {
		name string
		dst  *int
	}{
		{"CALC_PAGE_SIZE", &c.PageSize},
		{"CALC_HTTP_TIMEOUT_MS", &c.HTTPTimeoutMs},
		{"CALC_POLL_INITIAL_DELAY_MS", &c.Poll.InitialDelayMs},
		{"CALC_POLL_INTERVAL_MS", &c.Poll.IntervalMs},
		{"CALC_POLL_MAX_INTERVAL_MS", &c.Poll.MaxIntervalMs},
		{"CALC_POLL_MAX_ATTEMPTS", &c.Poll.MaxAttempts},
	}
	for _, v := range ints {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("некорректное значение %s=%q: %w", v.name, raw, err)
		}
		*v.dst = n
	}

	if raw := os.Getenv("CALC_POLL_BACKOFF"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("некорректное значение CALC_POLL_BACKOFF=%q: %w", raw, err)
		}
		c.Poll.Backoff = f
	}
	return nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("некорректный адрес сервиса: %q", c.APIURL)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("префикс API должен начинаться с /: %q", c.APIPrefix)
	}
	if c.SessionDB == "" {
		return errors.New("не задан путь к базе сессии")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("размер страницы должен быть положительным: %d", c.PageSize)
	}
	if c.HTTPTimeoutMs <= 0 {
		return fmt.Errorf("таймаут запроса должен быть положительным: %d", c.HTTPTimeoutMs)
	}
	if c.Poll.InitialDelayMs < 0 || c.Poll.IntervalMs <= 0 {
		return fmt.Errorf("некорректные интервалы опроса: %d/%d", c.Poll.InitialDelayMs, c.Poll.IntervalMs)
	}
	if c.Poll.Backoff < 1 {
		return fmt.Errorf("множитель интервала опроса не может быть меньше 1: %v", c.Poll.Backoff)
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("число опросов не может быть отрицательным: %d", c.Poll.MaxAttempts)
	}
	return nil
}

func (c Config) Client() api.Config {
	return api.Config{
		BaseURL: c.APIURL,
		Prefix:  c.APIPrefix,
		Timeout: time.Duration(c.HTTPTimeoutMs) * time.Millisecond,
	}
}

func (c Config) Engine() calc.Config {
	return calc.Config{
		InitialDelay: time.Duration(c.Poll.InitialDelayMs) * time.Millisecond,
		Interval:     time.Duration(c.Poll.IntervalMs) * time.Millisecond,
		MaxInterval:  time.Duration(c.Poll.MaxIntervalMs) * time.Millisecond,
		Backoff:      c.Poll.Backoff,
		MaxAttempts:  c.Poll.MaxAttempts,
	}
}

func getEnvOrDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
