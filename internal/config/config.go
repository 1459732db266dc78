package config

import "time"

// Config 配置结构
// 提供商凭证只从环境变量读取，不写入配置文件
type Config struct {
	// 默认DNS提供商，可被 --provider 覆盖
	Provider string `yaml:"provider" env:"DNS_PROVIDER"`

	RenewDays        int           `yaml:"renew_days" env:"CERTAUTOBOT_RENEW_DAYS"`               // 剩余天数小于等于该值时续期
	TTL              int           `yaml:"ttl" env:"CERTAUTOBOT_TTL"`                             // 验证记录TTL（秒）
	PropagationDelay time.Duration `yaml:"propagation_delay" env:"CERTAUTOBOT_PROPAGATION_DELAY"` // 创建记录后的等待时间
	Nameserver       string        `yaml:"nameserver" env:"CERTAUTOBOT_NAMESERVER"`               // 配置后在等待结束时检查记录是否可见

	// 证书到期时间来源: certbot, tls, aliyun, tencent, huawei
	CertStore string `yaml:"cert_store" env:"CERTAUTOBOT_CERT_STORE"`

	Certbot CertbotConfig `yaml:"certbot" envPrefix:"CERTAUTOBOT_CERTBOT_"`

	PostCommand string `yaml:"post_command" env:"CERTAUTOBOT_POST_COMMAND"` // 签发成功后执行的命令

	// Webhook 通知配置
	Webhook WebhookConfig `yaml:"webhook,omitempty"`

	// 实际加载的配置文件路径，为空表示只使用默认值和环境变量
	Path string `yaml:"-"`
}

// CertbotConfig certbot 调用参数
type CertbotConfig struct {
	Path              string   `yaml:"path" env:"PATH"`
	Email             string   `yaml:"email" env:"EMAIL"`
	ConfigDir         string   `yaml:"config_dir" env:"CONFIG_DIR"`
	WorkDir           string   `yaml:"work_dir" env:"WORK_DIR"`
	LogsDir           string   `yaml:"logs_dir" env:"LOGS_DIR"`
	Staging           bool     `yaml:"staging" env:"STAGING"`
	ExtraArgs         []string `yaml:"extra_args" env:"EXTRA_ARGS" envSeparator:" "`
	DeleteAfterRevoke bool     `yaml:"delete_after_revoke" env:"DELETE_AFTER_REVOKE"`
}

// WebhookConfig Webhook 通知配置
type WebhookConfig struct {
	Enabled      bool              `yaml:"enabled"`                 // 是否启用
	URL          string            `yaml:"url"`                     // Webhook URL
	Headers      map[string]string `yaml:"headers,omitempty"`       // 自定义请求头
	Events       []string          `yaml:"events,omitempty"`        // 订阅的事件类型
	Timeout      int               `yaml:"timeout,omitempty"`       // 请求超时时间（秒），默认30
	Retries      int               `yaml:"retries,omitempty"`       // 重试次数，默认3
	BodyTemplate string            `yaml:"body_template,omitempty"` // 请求体模板（JSON格式）
}

// HookEnv certbot 调用钩子时传入的环境变量
type HookEnv struct {
	Domain     string `env:"CERTBOT_DOMAIN"`
	Validation string `env:"CERTBOT_VALIDATION"`
	Provider   string `env:"DNS_PROVIDER"`
}
