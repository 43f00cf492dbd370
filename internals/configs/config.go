package configs

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration read from the environment.
type Config struct {
	AppEnv       string        `envconfig:"APP_ENV" default:"production"`
	Port         string        `envconfig:"PORT" default:"3000"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
	PublicAppURL string        `envconfig:"PUBLIC_APP_URL" default:"http://localhost:3000"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	CORSOrigins  string        `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`

	// Payment gateway
	PaymentProvider   string `envconfig:"PAYMENT_PROVIDER" default:"yookassa"`
	YooKassaShopID    string `envconfig:"YOOKASSA_SHOP_ID"`
	YooKassaSecretKey string `envconfig:"YOOKASSA_SECRET_KEY"`
	YooKassaAPIURL    string `envconfig:"YOOKASSA_API_URL" default:"https://api.yookassa.ru/v3"`
	WebhookSecret     string `envconfig:"PAYMENT_WEBHOOK_SECRET"`
	MidtransServerKey string `envconfig:"MIDTRANS_SERVER_KEY"`
	MidtransUseProd   bool   `envconfig:"MIDTRANS_USE_PROD" default:"false"`

	// Store (Strapi)
	StoreURL       string `envconfig:"STRAPI_URL" default:"http://localhost:1337"`
	StoreAPIToken  string `envconfig:"STRAPI_API_TOKEN"`
	StoreJWTSecret string `envconfig:"STRAPI_JWT_SECRET"`

	// Notifications
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`
	TelegramAPIURL   string `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org"`
	SMTPHost         string `envconfig:"SMTP_HOST"`
	SMTPPort         int    `envconfig:"SMTP_PORT" default:"465"`
	SMTPUsername     string `envconfig:"SMTP_USERNAME"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	AdminEmail       string `envconfig:"ADMIN_EMAIL"`

	// Events
	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"payment-events"`

	// Webhook journal
	DatabaseURL          string `envconfig:"DATABASE_URL"`
	JournalRetentionDays int    `envconfig:"JOURNAL_RETENTION_DAYS" default:"30"`
	JournalCleanupCron   string `envconfig:"JOURNAL_CLEANUP_CRON" default:"15 3 * * *"`

	DeliverySettingsTTL time.Duration `envconfig:"DELIVERY_SETTINGS_TTL" default:"5m"`
}

// LoadEnv reads .env (outside managed hosting) and maps the environment onto Config.
func LoadEnv() (*Config, error) {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found, using system environment")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.PaymentProvider = strings.ToLower(strings.TrimSpace(cfg.PaymentProvider))
	cfg.StoreURL = strings.TrimRight(cfg.StoreURL, "/")
	cfg.PublicAppURL = strings.TrimRight(cfg.PublicAppURL, "/")
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development") || strings.EqualFold(c.AppEnv, "dev")
}

// Origins splits CORS_ORIGINS into the list fiber's cors middleware expects.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Warnings lists configuration gaps that put the service in degraded mode.
func (c *Config) Warnings() []string {
	var w []string
	switch c.PaymentProvider {
	case "midtrans":
		if c.MidtransServerKey == "" {
			w = append(w, "MIDTRANS_SERVER_KEY is empty, gateway calls will be rejected")
		}
	default:
		if c.YooKassaShopID == "" || c.YooKassaSecretKey == "" {
			w = append(w, "YOOKASSA_SHOP_ID/YOOKASSA_SECRET_KEY not set, gateway calls will be rejected")
		}
	}
	if c.WebhookSecret == "" {
		w = append(w, "PAYMENT_WEBHOOK_SECRET not set, every webhook will be rejected")
	}
	if c.StoreAPIToken == "" {
		w = append(w, "STRAPI_API_TOKEN not set, order updates rely on anonymous writes")
	}
	return w
}
