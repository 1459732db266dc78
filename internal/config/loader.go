package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath 配置文件路径环境变量，certbot 调起钩子时通过它找到同一份配置
	EnvConfigPath = "CERTAUTOBOT_CONFIG"
	// DefaultPath 未指定时尝试加载的配置文件
	DefaultPath = "certautobot.yaml"

	DefaultProvider         = "digitalocean"
	DefaultRenewDays        = 30
	DefaultTTL              = 60
	DefaultPropagationDelay = 10 * time.Second
	DefaultCertStore        = "certbot"
	DefaultCertbotPath      = "certbot"
	DefaultCertbotConfigDir = "/etc/letsencrypt"
)

// LoadDotEnv 加载工作目录下的 .env 文件，已存在的环境变量不会被覆盖
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("加载 %s 失败: %w", p, err)
		}
	}
	return nil
}

// ResolvePath 确定配置文件路径：命令行参数、CERTAUTOBOT_CONFIG、当前目录下的默认文件
// 都没有时返回空字符串
func ResolvePath(flagValue string, environ map[string]string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := environ[EnvConfigPath]; p != "" {
		return p
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// Load 加载配置文件并应用环境变量覆盖
// path 为空时只使用默认值，environ 为 nil 时读取进程环境变量
func Load(path string, environ map[string]string) (*Config, error) {
	// 0 是合法的等待时长，只能在解码前预置默认值
	config := Config{PropagationDelay: DefaultPropagationDelay}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
		config.Path = path
	}

	if err := env.ParseWithOptions(&config, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults 设置默认值
func applyDefaults(config *Config) {
	config.Provider = strings.ToLower(strings.TrimSpace(config.Provider))
	if config.Provider == "" {
		config.Provider = DefaultProvider
	}
	if config.RenewDays == 0 {
		config.RenewDays = DefaultRenewDays
	}
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	config.CertStore = strings.ToLower(strings.TrimSpace(config.CertStore))
	if config.CertStore == "" {
		config.CertStore = DefaultCertStore
	}
	if config.Certbot.Path == "" {
		config.Certbot.Path = DefaultCertbotPath
	}
	if config.Certbot.ConfigDir == "" {
		config.Certbot.ConfigDir = DefaultCertbotConfigDir
	}
	if config.Webhook.Timeout <= 0 {
		config.Webhook.Timeout = 30
	}
	if config.Webhook.Retries <= 0 {
		config.Webhook.Retries = 3
	}
}

// validate 验证配置
func validate(config *Config) error {
	if config.RenewDays < 0 {
		return fmt.Errorf("renew_days 不能小于 0")
	}
	if config.TTL < 0 {
		return fmt.Errorf("ttl 不能小于 0")
	}
	if config.PropagationDelay < 0 {
		return fmt.Errorf("propagation_delay 不能小于 0")
	}
	if config.Webhook.Enabled && config.Webhook.URL == "" {
		return fmt.Errorf("webhook 已启用但未配置 url")
	}
	return nil
}

// LoadHookEnv 解析钩子环境变量
// requireValidation 为 true 时 CERTBOT_VALIDATION 必须存在（auth 钩子）
// 未设置 DNS_PROVIDER 时 Provider 为空，由调用方回退到配置文件中的提供商
func LoadHookEnv(environ map[string]string, requireValidation bool) (HookEnv, error) {
	var h HookEnv
	if err := env.ParseWithOptions(&h, env.Options{Environment: environ}); err != nil {
		return h, fmt.Errorf("解析钩子环境变量失败: %w", err)
	}

	h.Domain = strings.TrimSpace(h.Domain)
	h.Provider = strings.ToLower(strings.TrimSpace(h.Provider))
	if h.Domain == "" {
		return h, fmt.Errorf("未设置 CERTBOT_DOMAIN")
	}
	if requireValidation && h.Validation == "" {
		return h, fmt.Errorf("未设置 CERTBOT_VALIDATION")
	}
	return h, nil
}
