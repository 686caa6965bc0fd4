package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string
	LogLevel   string
	HTTPAddr   string

	CatalogMode    string
	CatalogDir     string
	StorefrontURLs []string

	RetailerAPIBaseURL   string
	RetailerAPIToken     string
	RetailerRateLimitRPS int
	RetailerTimeoutMs    int
	RetailerMaxResults   int

	DefaultMode         string
	SingleSourceMarkup  float64
	OptionalBudgetFloor float64

	LLMAPIURL    string
	LLMAPIKey    string
	LLMModel     string
	LLMTimeoutMs int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "cartpilot.db")),
		RawMailDir: getEnv("RAW_MAIL_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),

		CatalogMode:    strings.ToLower(getEnv("CATALOG_MODE", "simulation")),
		CatalogDir:     getEnv("CATALOG_DIR", ""),
		StorefrontURLs: getEnvList("STOREFRONT_URLS"),

		RetailerAPIBaseURL:   getEnv("RETAILER_API_BASE_URL", ""),
		RetailerAPIToken:     getEnv("RETAILER_API_TOKEN", ""),
		RetailerRateLimitRPS: getEnvInt("RETAILER_RATE_LIMIT_RPS", 5),
		RetailerTimeoutMs:    getEnvInt("RETAILER_TIMEOUT_MS", 30000),
		RetailerMaxResults:   getEnvInt("RETAILER_MAX_RESULTS", 10),

		DefaultMode:         getEnv("DEFAULT_MODE", "balanced"),
		SingleSourceMarkup:  getEnvFloat("SINGLE_SOURCE_MARKUP", 1.2),
		OptionalBudgetFloor: getEnvFloat("OPTIONAL_BUDGET_FLOOR", 10),

		LLMAPIURL:    getEnv("LLM_API_URL", ""),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
		LLMModel:     getEnv("LLM_MODEL", ""),
		LLMTimeoutMs: getEnvInt("LLM_TIMEOUT_MS", 15000),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 30),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	switch cfg.CatalogMode {
	case "simulation", "live", "hybrid":
	default:
		return Config{}, fmt.Errorf("invalid CATALOG_MODE %q: want simulation, live or hybrid", cfg.CatalogMode)
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
