package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | inmem
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	RedisConfig struct {
		URL string
	}

	KafkaConfig struct {
		Brokers     []string
		TopicPrefix string
	}

	SaccoConfig struct {
		SharePrice        int64 // minor units
		MinSavingsBalance int64
		LoanMultiplier    int64 // max principal = savings * multiplier
		MaxActiveLoans    int
		LoanGraceDays     int
	}

	CreditConfig struct {
		MaxAward int64
	}

	Config struct {
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		AppName         string
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string
		SendgridApiKey  string
		WorkDir         string

		PasswordResetTimeoutDelta time.Duration

		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Kafka    KafkaConfig
		Sacco    SaccoConfig
		Credit   CreditConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Sauti Back-office")
	v.SetDefault("secretKey", "x1p#s9z@-k2w+7m(4v!q8r&t0yb6n$d3c^e5f)g_hj*lu")
	v.SetDefault("defaultFromEmail", "Sauti <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "backoffice")
	v.SetDefault("database.user", "backoffice")
	v.SetDefault("database.password", "backoffice")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 20)

	v.SetDefault("redis.url", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topicPrefix", "backoffice.")

	v.SetDefault("sacco.sharePrice", int64(100_00))
	v.SetDefault("sacco.minSavingsBalance", int64(500_00))
	v.SetDefault("sacco.loanMultiplier", int64(3))
	v.SetDefault("sacco.maxActiveLoans", 1)
	v.SetDefault("sacco.loanGraceDays", 30)

	v.SetDefault("credit.maxAward", int64(10_000))
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` (if present) and the environment.
// Env vars are prefixed by the env name, eg. DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return fromViper(v, env, wd)
}

func fromViper(v *viper.Viper, env, wd string) *Config {
	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		WorkDir:          wd,
		defaultFromEmail: v.GetString("defaultFromEmail"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		Redis: RedisConfig{URL: v.GetString("redis.url")},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetStringSlice("kafka.brokers")),
			TopicPrefix: v.GetString("kafka.topicPrefix"),
		},
		Sacco: SaccoConfig{
			SharePrice:        v.GetInt64("sacco.sharePrice"),
			MinSavingsBalance: v.GetInt64("sacco.minSavingsBalance"),
			LoanMultiplier:    v.GetInt64("sacco.loanMultiplier"),
			MaxActiveLoans:    v.GetInt("sacco.maxActiveLoans"),
			LoanGraceDays:     v.GetInt("sacco.loanGraceDays"),
		},
		Credit: CreditConfig{MaxAward: v.GetInt64("credit.maxAward")},
	}
}

// NewTestConfig returns the default configuration in test mode, without reading the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("debug", false)
	v.Set("testMode", true)
	v.Set("database.engine", "inmem")
	v.Set("secretKey", "test-secret")
	return fromViper(v, "TEST", "")
}

// splitList also accepts a single comma separated value (as set from env vars).
func splitList(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, val := range vals {
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (c *Config) String() string {
	return fmt.Sprintf("%s(env=%s, build=%s, db=%s)", c.AppName, c.Env, c.Build, c.Database.Engine)
}
