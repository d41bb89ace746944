package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	ERPURL      string
	ERPDatabase string
	ERPUsername string
	ERPPassword string
	ERPProtocol string // jsonrpc or xmlrpc

	TenantID       string
	ConflictPolicy string

	NotifyWebhookURL string

	PollInterval    int // seconds
	BatchSize       int
	MaxItemsPerRun  int
	RunBudget       int // seconds, per ProcessQueue invocation
	CallTimeout     int // seconds, per remote call
	StaleTimeout    int // seconds before a processing item is reclaimed
	ShutdownTimeout int // seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	erpURL := os.Getenv("ERP_URL")
	erpDatabase := os.Getenv("ERP_DATABASE")
	erpUsername := os.Getenv("ERP_USERNAME")
	erpPassword := os.Getenv("ERP_PASSWORD")
	if erpURL == "" || erpDatabase == "" || erpUsername == "" || erpPassword == "" {
		return nil, fmt.Errorf("ERP_URL, ERP_DATABASE, ERP_USERNAME and ERP_PASSWORD are required")
	}

	protocol := os.Getenv("ERP_PROTOCOL")
	if protocol == "" {
		protocol = "jsonrpc"
	}
	if protocol != "jsonrpc" && protocol != "xmlrpc" {
		return nil, fmt.Errorf("ERP_PROTOCOL must be jsonrpc or xmlrpc, got %q", protocol)
	}

	policy := os.Getenv("CONFLICT_POLICY")
	if policy == "" {
		policy = "newest_wins"
	}
	if policy != "remote_wins" && policy != "local_wins" && policy != "newest_wins" {
		return nil, fmt.Errorf("CONFLICT_POLICY must be remote_wins, local_wins or newest_wins, got %q", policy)
	}

	tenant := os.Getenv("TENANT_ID")
	if tenant == "" {
		tenant = "default"
	}

	webhookURL := os.Getenv("NOTIFY_WEBHOOK_URL")
	if webhookURL == "" {
		fmt.Println("Warning: NOTIFY_WEBHOOK_URL not set, failure notifications go to the log only")
	}

	return &Config{
		DatabaseURL:      dbURL,
		ERPURL:           erpURL,
		ERPDatabase:      erpDatabase,
		ERPUsername:      erpUsername,
		ERPPassword:      erpPassword,
		ERPProtocol:      protocol,
		TenantID:         tenant,
		ConflictPolicy:   policy,
		NotifyWebhookURL: webhookURL,
		PollInterval:     envInt("POLL_INTERVAL", 30),
		BatchSize:        envInt("BATCH_SIZE", 10),
		MaxItemsPerRun:   envInt("MAX_ITEMS_PER_RUN", 100),
		RunBudget:        envInt("RUN_BUDGET", 120),
		CallTimeout:      envInt("CALL_TIMEOUT", 60),
		StaleTimeout:     envInt("STALE_TIMEOUT", 600),
		ShutdownTimeout:  envInt("SHUTDOWN_TIMEOUT", 30),
	}, nil
}

// envInt reads an integer environment variable, falling back to the default
// when unset or unparseable.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		fmt.Printf("Warning: invalid %s=%q, using default %d\n", name, raw, fallback)
		return fallback
	}
	return value
}
