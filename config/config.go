package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// EnvPrefix is stripped from environment variables, the rest maps to
// config keys: CONTACTD_META_LISTEN -> meta.listen
const EnvPrefix = "CONTACTD_"

const (
	FlashStoreCookie = "cookie"
	FlashStoreBolt   = "bolt"
)

type MetaConfig struct {
	Version         string `koanf:"-" json:"-"`
	ListenAddr      string `koanf:"listen" json:"listen" validate:"required"`
	ListenAddrTLS   string `koanf:"listentls" json:"listentls"`
	TLSCert         string `koanf:"tlscert" json:"tlscert"`
	TLSKey          string `koanf:"tlskey" json:"tlskey"`
	SiteName        string `koanf:"sitename" json:"sitename"`
	SiteURL         string `koanf:"siteurl" json:"siteurl" validate:"required,url"`
	DevelopmentMode bool   `koanf:"devmode" json:"devmode"`
	CopyrightName   string `koanf:"copyrightname" json:"copyrightname"`
	LiveTemplate    bool   `koanf:"livetemplate" json:"livetemplate"`
	PathTemplates   string `koanf:"templatedir" json:"templatedir"` // empty: built-in templates
	PathPublic      string `koanf:"publicdir" json:"publicdir"`     // empty: no static files
}

type SecurityConfig struct {
	SecretKey   string `koanf:"secretkey" json:"-" validate:"omitempty,hexadecimal"` // empty: random per process
	CookieName  string `koanf:"cookiename" json:"cookiename" validate:"required,alphanum"`
	FlashStore  string `koanf:"flashstore" json:"flashstore" validate:"oneof=cookie bolt"`
	BoltDB      string `koanf:"database" json:"database" validate:"required_if=FlashStore bolt"`
	ServePublic bool   `koanf:"servepublic" json:"servepublic"` // serve unhandled paths from PathPublic
}

type Config struct {
	Meta           MetaConfig     `koanf:"meta" json:"meta"`
	Sec            SecurityConfig `koanf:"security" json:"security"`
	ConfigFilePath string         `koanf:"-" json:"-"` // empty if no config file
}

// Default returns the config used when nothing else is given.
func Default() Config {
	return Config{
		Meta: MetaConfig{
			ListenAddr:    "127.0.0.1:8080",
			ListenAddrTLS: "127.0.0.1:1443",
			SiteName:      "contactd",
			SiteURL:       "http://127.0.0.1:8080",
		},
		Sec: SecurityConfig{
			CookieName: "contactd",
			FlashStore: FlashStoreCookie,
			BoltDB:     "flash.db",
		},
	}
}

// Load layers Default, the JSON file at path (skipped if empty) and
// CONTACTD_ environment variables. A .env file in the working directory
// is loaded into the environment first.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %q", path)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "error reading environment")
	}

	config := Default()
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "error decoding config")
	}
	config.ConfigFilePath = path
	return &config, nil
}

// SecureCookies reports whether cookies should carry the Secure flag: never
// in dev mode, otherwise when TLS is configured or the site URL is https.
func (c Config) SecureCookies() bool {
	if c.Meta.DevelopmentMode {
		return false
	}
	if c.Meta.TLSCert != "" {
		return true
	}
	u, err := url.Parse(c.Meta.SiteURL)
	return err == nil && u.Scheme == "https"
}

var validate = validator.New()

// CheckConfig validates config, applies $PORT and $SITEURL overrides and
// resolves directories relative to the config file.
func CheckConfig(config *Config, log zerolog.Logger) error {
	if config.Meta.Version == "" {
		config.Meta.Version = "contactd"
	}

	// override if $PORT or $SITEURL are used (heroku, etc)
	if port := os.Getenv("PORT"); port != "" {
		log.Info().Str("port", port).Msg("overriding flags and config file with $PORT")
		config.Meta.ListenAddr = ":" + port
	}
	if siteurl := os.Getenv("SITEURL"); siteurl != "" {
		log.Info().Str("siteurl", siteurl).Msg("overriding flags and config file with $SITEURL")
		config.Meta.SiteURL = siteurl
	}

	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if (config.Meta.TLSCert == "") != (config.Meta.TLSKey == "") {
		return fmt.Errorf("config needs both Meta.tlscert and Meta.tlskey, or neither")
	}
	if config.Sec.ServePublic && config.Meta.PathPublic == "" {
		return fmt.Errorf("config needs Meta.publicdir when Security.servepublic is set")
	}
	if config.Meta.LiveTemplate && config.Meta.PathTemplates == "" {
		return fmt.Errorf("config needs Meta.templatedir when Meta.livetemplate is set")
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	if config.ConfigFilePath != "" {
		dir, err = filepath.Abs(filepath.Dir(config.ConfigFilePath))
		if err != nil {
			return errors.Wrap(err, "resolving config directory")
		}
	}
	for _, p := range []*string{&config.Meta.PathPublic, &config.Meta.PathTemplates} {
		if *p == "" {
			continue
		}
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
		if s, err := os.Stat(*p); err != nil {
			return err
		} else if !s.IsDir() {
			return fmt.Errorf("is not a dir: %v", *p)
		}
	}
	if config.Sec.FlashStore == FlashStoreBolt && !filepath.IsAbs(config.Sec.BoltDB) {
		config.Sec.BoltDB = filepath.Join(dir, config.Sec.BoltDB)
	}
	return nil
}
