package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/internal/httpapi"
	"github.com/MarkoPoloResearchLab/travelbook/internal/notify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store"
	flagAutoMigrate       = "auto-migrate"
	flagChapaBaseURL      = "chapa-base-url"
	flagChapaSecretKey    = "chapa-secret-key"
	flagChapaSecretRef    = "chapa-secret-ref"
	flagGatewayTimeout    = "gateway-timeout"
	flagSiteURL           = "site-url"
	flagFromEmail         = "from-email"
	flagMailSender        = "mail-sender"
	flagSMTPHost          = "smtp-host"
	flagSMTPPort          = "smtp-port"
	flagSMTPUsername      = "smtp-username"
	flagSMTPPassword      = "smtp-password"
	flagQueueMode         = "queue"
	flagSQSQueueURL       = "sqs-queue-url"
	flagRedisURL          = "redis-url"
	flagNotifyWorkers     = "notify-workers"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagJWTCookieName     = "jwt-cookie-name"
	flagSweepInterval     = "sweep-interval"
	flagSweepMinAge       = "sweep-min-age"
	flagSweepBatch        = "sweep-batch"
	envPrefix             = "TRAVELBOOK"
	defaultDatabaseURL    = "sqlite:///tmp/travelbook.db"
	defaultChapaBaseURL   = "https://api.chapa.co/v1/"
	defaultSiteURL        = "http://localhost:8080"
	defaultFromEmail      = "noreply@travelbook.local"
	defaultGatewayTimeout = 5 * time.Second
	storeDriverGORM       = "gorm"
	storeDriverPGX        = "pgx"
	mailSenderLog         = "log"
	mailSenderSMTP        = "smtp"
	mailSenderSES         = "ses"
	queueModeMemory       = "memory"
	queueModeSQS          = "sqs"
	callbackPath          = "/api/payment/callback/"
)

// configBinding ties a flag to its viper key and any unprefixed environment names.
type configBinding struct {
	flag string
	envs []string
}

var configBindings = []configBinding{
	{flag: flagDatabaseURL, envs: []string{"DATABASE_URL"}},
	{flag: flagStoreDriver},
	{flag: flagAutoMigrate},
	{flag: flagChapaBaseURL, envs: []string{"CHAPA_BASE_URL"}},
	{flag: flagChapaSecretKey, envs: []string{"CHAPA_SECRET_KEY"}},
	{flag: flagChapaSecretRef},
	{flag: flagGatewayTimeout},
	{flag: flagSiteURL, envs: []string{"SITE_URL"}},
	{flag: flagFromEmail, envs: []string{"DEFAULT_FROM_EMAIL"}},
	{flag: flagMailSender},
	{flag: flagSMTPHost, envs: []string{"SMTP_HOST"}},
	{flag: flagSMTPPort, envs: []string{"SMTP_PORT"}},
	{flag: flagSMTPUsername, envs: []string{"SMTP_USERNAME"}},
	{flag: flagSMTPPassword, envs: []string{"SMTP_PASSWORD"}},
	{flag: flagQueueMode},
	{flag: flagSQSQueueURL},
	{flag: flagRedisURL, envs: []string{"REDIS_URL"}},
	{flag: flagNotifyWorkers},
	{flag: flagListenAddr},
	{flag: flagAllowedOrigins},
	{flag: flagJWTSigningKey},
	{flag: flagJWTIssuer},
	{flag: flagJWTCookieName},
	{flag: flagSweepInterval},
	{flag: flagSweepMinAge},
	{flag: flagSweepBatch},
}

type runtimeConfig struct {
	DatabaseURL    string
	StoreDriver    string
	AutoMigrate    bool
	ChapaBaseURL   string
	ChapaSecretKey string
	ChapaSecretRef string
	GatewayTimeout time.Duration
	SiteURL        string
	FromEmail      string
	MailSender     string
	SMTP           notify.SMTPConfig
	QueueMode      string
	SQSQueueURL    string
	RedisURL       string
	NotifyWorkers  int
	HTTP           httpapi.Config
	SweepInterval  time.Duration
	SweepMinAge    time.Duration
	SweepBatch     int
}

// loadConfig resolves flags, TRAVELBOOK_* variables and the plain names the deployment already uses.
// Flags set on the command line win over the environment.
func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, binding := range configBindings {
		if len(binding.envs) > 0 {
			names := append([]string{binding.flag, envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(binding.flag, "-", "_"))}, binding.envs...)
			if err := v.BindEnv(names...); err != nil {
				return err
			}
		}
		flag := cmd.Flags().Lookup(binding.flag)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(binding.flag, flag); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString(flagStoreDriver)))
	cfg.AutoMigrate = v.GetBool(flagAutoMigrate)
	cfg.ChapaBaseURL = strings.TrimSpace(v.GetString(flagChapaBaseURL))
	cfg.ChapaSecretKey = strings.TrimSpace(v.GetString(flagChapaSecretKey))
	cfg.ChapaSecretRef = strings.TrimSpace(v.GetString(flagChapaSecretRef))
	cfg.GatewayTimeout = v.GetDuration(flagGatewayTimeout)
	cfg.SiteURL = strings.TrimSpace(v.GetString(flagSiteURL))
	cfg.FromEmail = strings.TrimSpace(v.GetString(flagFromEmail))
	cfg.MailSender = strings.ToLower(strings.TrimSpace(v.GetString(flagMailSender)))
	cfg.SMTP = notify.SMTPConfig{
		Host:     strings.TrimSpace(v.GetString(flagSMTPHost)),
		Port:     v.GetInt(flagSMTPPort),
		Username: v.GetString(flagSMTPUsername),
		Password: v.GetString(flagSMTPPassword),
	}
	cfg.QueueMode = strings.ToLower(strings.TrimSpace(v.GetString(flagQueueMode)))
	cfg.SQSQueueURL = strings.TrimSpace(v.GetString(flagSQSQueueURL))
	cfg.RedisURL = strings.TrimSpace(v.GetString(flagRedisURL))
	cfg.NotifyWorkers = v.GetInt(flagNotifyWorkers)
	cfg.HTTP = httpapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagJWTSigningKey),
		SessionIssuer:     strings.TrimSpace(v.GetString(flagJWTIssuer)),
		SessionCookieName: strings.TrimSpace(v.GetString(flagJWTCookieName)),
	}
	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	cfg.SweepMinAge = v.GetDuration(flagSweepMinAge)
	cfg.SweepBatch = v.GetInt(flagSweepBatch)

	return cfg.Validate()
}

// Validate fills defaults and checks the settings every command needs.
func (cfg *runtimeConfig) Validate() error {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = storeDriverGORM
	}
	if cfg.ChapaBaseURL == "" {
		cfg.ChapaBaseURL = defaultChapaBaseURL
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = defaultSiteURL
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = defaultFromEmail
	}
	if cfg.MailSender == "" {
		cfg.MailSender = mailSenderLog
	}
	if cfg.QueueMode == "" {
		cfg.QueueMode = queueModeMemory
	}
	cfg.SMTP.From = cfg.FromEmail

	switch cfg.StoreDriver {
	case storeDriverGORM, storeDriverPGX:
	default:
		return fmt.Errorf("unsupported store %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver == storeDriverPGX && !isPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("store %s requires a postgres database url", storeDriverPGX)
	}
	switch cfg.MailSender {
	case mailSenderLog, mailSenderSES:
	case mailSenderSMTP:
		if cfg.SMTP.Host == "" {
			return fmt.Errorf("smtp host is required for mail sender %s", mailSenderSMTP)
		}
	default:
		return fmt.Errorf("unsupported mail sender %q", cfg.MailSender)
	}
	switch cfg.QueueMode {
	case queueModeMemory:
	case queueModeSQS:
		if cfg.SQSQueueURL == "" {
			return fmt.Errorf("sqs queue url is required for queue %s", queueModeSQS)
		}
	default:
		return fmt.Errorf("unsupported queue %q", cfg.QueueMode)
	}
	site, err := url.Parse(cfg.SiteURL)
	if err != nil || site.Scheme == "" || site.Host == "" {
		return fmt.Errorf("site url must be absolute: %q", cfg.SiteURL)
	}
	return nil
}

// CallbackURL is where the gateway sends the payer after checkout.
func (cfg *runtimeConfig) CallbackURL() string {
	return strings.TrimRight(cfg.SiteURL, "/") + callbackPath
}

// requireGatewaySecret reports a missing key unless it will be resolved from Secrets Manager.
func (cfg *runtimeConfig) requireGatewaySecret() error {
	if cfg.ChapaSecretKey == "" && cfg.ChapaSecretRef == "" {
		return fmt.Errorf("chapa secret key is required (set CHAPA_SECRET_KEY or --%s)", flagChapaSecretRef)
	}
	return nil
}
