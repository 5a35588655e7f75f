package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MSSYNC_MOYSKLAD_TOKEN.
const EnvPrefix = "MSSYNC"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	MoySklad  MoySkladConfig  `mapstructure:"moysklad"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Order     OrderConfig     `mapstructure:"order"`
	Customer  CustomerConfig  `mapstructure:"customer"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Bonus     BonusConfig     `mapstructure:"bonus"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	CorsOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SyncCooldown time.Duration `mapstructure:"sync_cooldown"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxIdle  int    `mapstructure:"max_idle"`
	MaxOpen  int    `mapstructure:"max_open"`
	LogLevel string `mapstructure:"log_level"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	DBLevel       string `mapstructure:"db_level"`
	RetentionDays int    `mapstructure:"retention_days"`
	CleanupCron   string `mapstructure:"cleanup_cron"`
}

type MoySkladConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Token    string        `mapstructure:"token"`
	Login    string        `mapstructure:"login"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	ProxyURL string        `mapstructure:"proxy_url"`
	// RateLimitReset closes a tripped rate-limit latch after this long; 0 keeps it until restart.
	RateLimitReset time.Duration `mapstructure:"rate_limit_reset"`
}

// Sync modes.
const (
	ModeStandard    = "standard"
	ModeAccelerated = "accelerated"
)

type CatalogConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Mode            string `mapstructure:"mode"`
	Schedule        string `mapstructure:"schedule"`
	SyncImages      bool   `mapstructure:"sync_images"`
	SyncAllImages   bool   `mapstructure:"sync_all_images"`
	SyncDescription bool   `mapstructure:"sync_description"`
	SyncGroups      bool   `mapstructure:"sync_groups"`
	SyncVariants    bool   `mapstructure:"sync_variants"`
	SyncAttributes  bool   `mapstructure:"sync_attributes"`
	SyncName        bool   `mapstructure:"sync_name"`
	PriceTypeID     string `mapstructure:"price_type_id"`
}

type InventoryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Schedule    string `mapstructure:"schedule"`
	WarehouseID string `mapstructure:"warehouse_id"`
	BatchSize   int    `mapstructure:"batch_size"`
}

type OrderConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	StatusSync           bool          `mapstructure:"status_sync"`
	StatusSyncFromRemote bool          `mapstructure:"status_sync_from_remote"`
	Prefix               string        `mapstructure:"prefix"`
	OrganizationID       string        `mapstructure:"organization_id"`
	WarehouseID          string        `mapstructure:"warehouse_id"`
	CustomerGroupID      string        `mapstructure:"customer_group_id"`
	AutoCreateProducts   bool          `mapstructure:"auto_create_products"`
	SyncDelay            time.Duration `mapstructure:"sync_delay"`
	PendingSchedule      string        `mapstructure:"pending_schedule"`
	StatusMapping        StatusMapping `mapstructure:"status_mapping"`
}

type CustomerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	GroupID       string `mapstructure:"group_id"`
	PriceTypeSync bool   `mapstructure:"price_type_sync"`
}

type WebhookConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Secret    string `mapstructure:"secret"`
	PublicURL string `mapstructure:"public_url"`
	// Async publishes events to Kafka instead of processing them in the request.
	Async bool `mapstructure:"async"`
}

type BonusConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	UsedAttributeID    string `mapstructure:"used_attribute_id"`
	EarnedAttributeID  string `mapstructure:"earned_attribute_id"`
	BalanceAttributeID string `mapstructure:"balance_attribute_id"`
}

type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // s3 | none
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	CDNDomain string `mapstructure:"cdn_domain"`
	BasePath  string `mapstructure:"base_path"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// ==================== 加载 ====================

// Load reads .env (when present), then the optional YAML file at path, then
// MSSYNC_* environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config %s: %w", path, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.sync_cooldown", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_open", 100)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.db_level", "info")
	v.SetDefault("logging.retention_days", 30)
	v.SetDefault("logging.cleanup_cron", "0 30 3 * * *")

	v.SetDefault("moysklad.base_url", "https://api.moysklad.ru/api/remap/1.2")
	v.SetDefault("moysklad.token", "")
	v.SetDefault("moysklad.login", "")
	v.SetDefault("moysklad.password", "")
	v.SetDefault("moysklad.timeout", "45s")
	v.SetDefault("moysklad.proxy_url", "")
	v.SetDefault("moysklad.rate_limit_reset", "0s")

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.mode", ModeStandard)
	v.SetDefault("catalog.schedule", "0 0 2 * * *")
	v.SetDefault("catalog.sync_images", true)
	v.SetDefault("catalog.sync_all_images", false)
	v.SetDefault("catalog.sync_description", true)
	v.SetDefault("catalog.sync_groups", true)
	v.SetDefault("catalog.sync_variants", true)
	v.SetDefault("catalog.sync_attributes", true)
	v.SetDefault("catalog.sync_name", true)
	v.SetDefault("catalog.price_type_id", "")

	v.SetDefault("inventory.enabled", false)
	v.SetDefault("inventory.schedule", "0 0 * * * *")
	v.SetDefault("inventory.warehouse_id", "")
	v.SetDefault("inventory.batch_size", 50)

	v.SetDefault("order.enabled", true)
	v.SetDefault("order.status_sync", true)
	v.SetDefault("order.status_sync_from_remote", false)
	v.SetDefault("order.prefix", "WC-")
	v.SetDefault("order.organization_id", "")
	v.SetDefault("order.warehouse_id", "")
	v.SetDefault("order.customer_group_id", "")
	v.SetDefault("order.auto_create_products", true)
	v.SetDefault("order.sync_delay", "0s")
	v.SetDefault("order.pending_schedule", "0 */5 * * * *")
	v.SetDefault("order.status_mapping", map[string]string{})

	v.SetDefault("customer.enabled", true)
	v.SetDefault("customer.group_id", "")
	v.SetDefault("customer.price_type_sync", false)

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.public_url", "")
	v.SetDefault("webhook.async", false)

	v.SetDefault("bonus.enabled", false)
	v.SetDefault("bonus.used_attribute_id", "6af5c95b-f91b-11eb-0a80-0656000e3f2c")
	v.SetDefault("bonus.earned_attribute_id", "7bc8dfbb-f91b-11eb-0a80-0656000e3f2d")
	v.SetDefault("bonus.balance_attribute_id", "8c24e9bb-f91b-11eb-0a80-0656000e3f2e")

	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.cdn_domain", "")
	v.SetDefault("storage.base_path", "products")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "moysklad-webhooks")
	v.SetDefault("kafka.group_id", "moysklad-sync")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Catalog.Mode {
	case ModeStandard, ModeAccelerated:
	default:
		return fmt.Errorf("catalog.mode must be %q or %q, got %q", ModeStandard, ModeAccelerated, c.Catalog.Mode)
	}
	if c.Inventory.BatchSize <= 0 {
		return fmt.Errorf("inventory.batch_size must be positive")
	}
	if c.Logging.RetentionDays < 0 {
		return fmt.Errorf("logging.retention_days must not be negative")
	}
	if c.Webhook.Async && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("webhook.async requires kafka.brokers")
	}
	if err := c.Order.StatusMapping.Validate(); err != nil {
		return fmt.Errorf("order.status_mapping: %w", err)
	}
	return nil
}

// ==================== 订单状态映射 ====================

// StatusMapping maps a local order status to a remote state id. An empty
// value means the status is not synchronized.
type StatusMapping map[string]string

// DuplicateTargetError reports two local statuses mapped to one remote state.
type DuplicateTargetError struct {
	RemoteID string
	Locals   []string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("remote state %s is mapped from several local statuses (%s); the reverse lookup would be ambiguous",
		e.RemoteID, strings.Join(e.Locals, ", "))
}

// Validate rejects duplicate non-empty remote targets.
func (m StatusMapping) Validate() error {
	seen := make(map[string][]string)
	for _, local := range m.sortedKeys() {
		remote := m[local]
		if remote == "" {
			continue
		}
		seen[remote] = append(seen[remote], local)
	}
	remotes := make([]string, 0, len(seen))
	for r := range seen {
		remotes = append(remotes, r)
	}
	sort.Strings(remotes)
	for _, r := range remotes {
		if len(seen[r]) > 1 {
			return &DuplicateTargetError{RemoteID: r, Locals: seen[r]}
		}
	}
	return nil
}

// Remote returns the remote state id for a local status.
func (m StatusMapping) Remote(local string) (string, bool) {
	r, ok := m[local]
	if !ok || r == "" {
		return "", false
	}
	return r, true
}

// Reverse builds the remote → local index. Keys are visited in sorted order,
// so if a mapping bypassed Validate the smallest local status wins.
func (m StatusMapping) Reverse() map[string]string {
	out := make(map[string]string, len(m))
	for _, local := range m.sortedKeys() {
		remote := m[local]
		if remote == "" {
			continue
		}
		if _, taken := out[remote]; !taken {
			out[remote] = local
		}
	}
	return out
}

func (m StatusMapping) sortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
