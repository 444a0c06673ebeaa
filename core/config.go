package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default) | TEST | QA | PROD
		Build    string
		AppName  string

		// SecretKey is shared with the Kampus backend; tokens it issues are
		// validated here with the same key.
		SecretKey        string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		WorkDir          string

		Server   ServerConfig
		Kampus   KampusConfig
		Monitor  MonitorConfig
		Database DatabaseConfig
	}

	ServerConfig struct {
		Host            string
		Port            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	// KampusConfig points at the upstream Kampus REST API (the Django backend).
	// Username/Password are the monitor's service account credentials.
	KampusConfig struct {
		BaseURL  string
		Timeout  time.Duration
		Username string
		Password string
	}

	// MonitorConfig holds the live-feed defaults applied until an admin
	// reconfigures the feed at runtime. ProcessID 0 starts the gateway idle.
	MonitorConfig struct {
		ProcessID       int
		PollInterval    time.Duration
		Preset          string
		PushEnabled     bool
		AlertRecipients []string
	}

	DatabaseConfig struct {
		Enabled       bool
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}
)

func (c ServerConfig) Address() string   { return c.Host + ":" + c.Port }
func (c DatabaseConfig) Address() string { return c.Host + ":" + c.Port }

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "KampusMonitor")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "+=w4n@q1e5d$v%o(t3s&kampus!sub004*m0n1t0r")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("serverHost", "0.0.0.0")
	v.SetDefault("serverPort", "8800")
	v.SetDefault("serverDebugHost", "0.0.0.0:8801")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("kampusBaseUrl", "http://localhost:8000/api")
	v.SetDefault("kampusTimeout", 15*time.Second)
	v.SetDefault("kampusUsername", "")
	v.SetDefault("kampusPassword", "")
	v.SetDefault("monitorProcessId", 0)
	v.SetDefault("monitorPollInterval", 30*time.Second)
	v.SetDefault("monitorPreset", "standard")
	v.SetDefault("monitorPushEnabled", true)
	v.SetDefault("monitorAlertRecipients", []string{})
	v.SetDefault("dbEnabled", false)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbName", "kampus_monitor")
	v.SetDefault("dbUser", "kampus")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbDisableTLS", true)

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	env = strings.ToUpper(env)
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

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

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config: invalid defaultFromEmail: %v", err)
	}

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: *from,
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		WorkDir:          wd,
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			Port:            v.GetString("serverPort"),
			DebugHost:       v.GetString("serverDebugHost"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
		},
		Kampus: KampusConfig{
			BaseURL:  strings.TrimRight(v.GetString("kampusBaseUrl"), "/"),
			Timeout:  v.GetDuration("kampusTimeout"),
			Username: v.GetString("kampusUsername"),
			Password: v.GetString("kampusPassword"),
		},
		Monitor: MonitorConfig{
			ProcessID:       v.GetInt("monitorProcessId"),
			PollInterval:    v.GetDuration("monitorPollInterval"),
			Preset:          v.GetString("monitorPreset"),
			PushEnabled:     v.GetBool("monitorPushEnabled"),
			AlertRecipients: v.GetStringSlice("monitorAlertRecipients"),
		},
		Database: DatabaseConfig{
			Enabled:       v.GetBool("dbEnabled"),
			Engine:        v.GetString("dbEngine"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
