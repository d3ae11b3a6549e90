package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	Log      string
	LogLevel string
	Env      string // dev|test|prod

	LDAPHost           string
	LDAPPort           string
	LDAPUseTLS         bool
	LDAPBaseDN         string
	LDAPBindDNFormat   string // например uid=%s,ou=people,dc=example,dc=com
	LDAPAdminBindDN    string
	LDAPAdminPassword  string
	LDAPDisabledRoleDN string
	LDAPTimeout        string

	DbHost    string
	DbPort    string
	DbUser    string
	DbPass    string
	DbName    string
	DbSSLMode string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
	MailPhone    string
	MailSite     string

	ResetURL         string
	PasswordResetTTL string

	HashScheme   string
	SaltLength   string
	SaltAlphabet string // alphanumeric|crypt
}

// LoadConfig загружает .env, читает переменные окружения и выставляет дефолты.
// Ничего не логирует — чтобы не создавать зависимость от logger.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv(os.Getenv), nil
}

// FromEnv собирает конфиг из произвольного источника переменных (удобно в тестах).
func FromEnv(getenv func(string) string) *Config {
	def := func(v, d string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return d
		}
		return v
	}

	baseDN := def(getenv("LDAP_BASE_DN"), "dc=example,dc=com")

	cfg := &Config{
		Port: def(getenv("PORT"), "8080"),

		Log:      getenv("LOG"),
		LogLevel: strings.ToLower(def(getenv("LOGLEVEL"), "info")),
		Env:      strings.ToLower(def(getenv("ENV"), "prod")),

		LDAPHost:           getenv("LDAP_HOST"),
		LDAPPort:           def(getenv("LDAP_PORT"), "389"),
		LDAPUseTLS:         parseBool(getenv("LDAP_USE_TLS")),
		LDAPBaseDN:         baseDN,
		LDAPBindDNFormat:   def(getenv("LDAP_BIND_DN_FORMAT"), "uid=%s,ou=people,"+baseDN),
		LDAPAdminBindDN:    def(getenv("LDAP_ADMIN_BIND_DN"), "cn=Directory Manager"),
		LDAPAdminPassword:  getenv("LDAP_ADMIN_PASSWORD"),
		LDAPDisabledRoleDN: def(getenv("LDAP_DISABLED_ROLE_DN"), "cn=nsmanageddisabledrole,"+baseDN),
		LDAPTimeout:        def(getenv("LDAP_TIMEOUT"), "10s"),

		DbHost:    getenv("DB_HOST"),
		DbPort:    def(getenv("DB_PORT"), "5432"),
		DbUser:    getenv("DB_USER"),
		DbPass:    getenv("DB_PASSWORD"),
		DbName:    getenv("DB_NAME"),
		DbSSLMode: def(getenv("DB_SSLMODE"), "disable"),

		SMTPHost:     getenv("SMTP_HOST"),
		SMTPPort:     def(getenv("SMTP_PORT"), "587"),
		SMTPUser:     getenv("SMTP_USER"),
		SMTPPassword: getenv("SMTP_PASSWORD"),
		MailFrom:     getenv("MAIL_FROM"),
		MailPhone:    getenv("MAIL_PHONE"),
		MailSite:     getenv("MAIL_SITE"),

		ResetURL:         strings.TrimRight(getenv("RESET_URL"), "/"),
		PasswordResetTTL: def(getenv("PASSWORD_RESET_TTL"), "24h"),

		HashScheme:   strings.ToUpper(strings.TrimSpace(getenv("HASH_SCHEME"))),
		SaltLength:   def(getenv("SALT_LENGTH"), "31"),
		SaltAlphabet: strings.ToLower(def(getenv("SALT_ALPHABET"), "alphanumeric")),
	}

	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}

	return cfg
}

// Validate возвращает предупреждения и фатальную ошибку (если критично).
func (c *Config) Validate() (warnings []string, err error) {
	// Критичные: каталог
	if c.LDAPHost == "" {
		if !c.IsDev() {
			return nil, fmt.Errorf("incomplete LDAP config (LDAP_HOST)")
		}
		warnings = append(warnings, "LDAP_HOST is empty, using in-memory directory")
	}
	if !strings.Contains(c.LDAPBindDNFormat, "%s") {
		return nil, fmt.Errorf("LDAP_BIND_DN_FORMAT must contain %%s")
	}
	if c.LDAPAdminPassword == "" {
		warnings = append(warnings, "LDAP_ADMIN_PASSWORD is empty")
	}

	if c.DbHost == "" || c.DbUser == "" || c.DbName == "" {
		if !c.IsDev() {
			return nil, fmt.Errorf("incomplete DB config (DB_HOST/DB_USER/DB_NAME)")
		}
		warnings = append(warnings, "DB is not configured, reset tokens are kept in memory")
	}

	// SMTP — предупреждение
	if c.SMTPHost == "" || c.MailFrom == "" {
		warnings = append(warnings, "SMTP is not fully configured")
	}

	if _, perr := time.ParseDuration(c.PasswordResetTTL); perr != nil {
		warnings = append(warnings, "PASSWORD_RESET_TTL is invalid, using 24h")
	}

	// PORT
	if c.Port == "" {
		warnings = append(warnings, "PORT is empty, using default 8080")
	}

	return warnings, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "development" || c.Env == "test"
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

// ResetTTL — срок жизни ссылки сброса пароля (по умолчанию сутки).
func (c *Config) ResetTTL() time.Duration {
	d, err := time.ParseDuration(c.PasswordResetTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) LDAPTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.LDAPTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) SaltLen() int {
	n, err := strconv.Atoi(c.SaltLength)
	if err != nil || n <= 0 {
		return 31
	}
	return n
}

// LDAPURL — адрес каталога в виде ldap://host:port или ldaps://host:port
func (c *Config) LDAPURL() string {
	scheme := "ldap"
	if c.LDAPUseTLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, c.LDAPHost, c.LDAPPort)
}

// GetDSN — полная DSN (с паролем)
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DbUser, c.DbPass, c.DbHost, c.DbPort, c.DbName, c.DbSSLMode,
	)
}

// GetDSNSafe — DSN без пароля (для логов)
func (c *Config) GetDSNSafe() string {
	return fmt.Sprintf(
		"postgres://%s:***@%s:%s/%s?sslmode=%s",
		c.DbUser, c.DbHost, c.DbPort, c.DbName, c.DbSSLMode,
	)
}

func (c *Config) HasDB() bool {
	return c.DbHost != "" && c.DbUser != "" && c.DbName != ""
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
