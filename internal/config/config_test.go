package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, DefaultProvider, cfg.Provider)
	assert.Equal(t, DefaultRenewDays, cfg.RenewDays)
	assert.Equal(t, DefaultTTL, cfg.TTL)
	assert.Equal(t, DefaultPropagationDelay, cfg.PropagationDelay)
	assert.Equal(t, DefaultCertStore, cfg.CertStore)
	assert.Equal(t, DefaultCertbotPath, cfg.Certbot.Path)
	assert.Equal(t, DefaultCertbotConfigDir, cfg.Certbot.ConfigDir)
	assert.Empty(t, cfg.Path)
	assert.False(t, cfg.Webhook.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "certautobot.yaml", `
provider: Aliyun
renew_days: 20
ttl: 600
propagation_delay: 45s
nameserver: 1.1.1.1
cert_store: tls
certbot:
  email: admin@example.com
  config_dir: /tmp/le
  staging: true
  extra_args: ["--key-type", "ecdsa"]
  delete_after_revoke: true
post_command: systemctl reload nginx
webhook:
  enabled: true
  url: https://hooks.example.com/cert
  events: [cert_renewed]
`)

	cfg, err := Load(path, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "aliyun", cfg.Provider)
	assert.Equal(t, 20, cfg.RenewDays)
	assert.Equal(t, 600, cfg.TTL)
	assert.Equal(t, 45*time.Second, cfg.PropagationDelay)
	assert.Equal(t, "1.1.1.1", cfg.Nameserver)
	assert.Equal(t, "tls", cfg.CertStore)
	assert.Equal(t, "admin@example.com", cfg.Certbot.Email)
	assert.Equal(t, "/tmp/le", cfg.Certbot.ConfigDir)
	assert.True(t, cfg.Certbot.Staging)
	assert.Equal(t, []string{"--key-type", "ecdsa"}, cfg.Certbot.ExtraArgs)
	assert.True(t, cfg.Certbot.DeleteAfterRevoke)
	assert.Equal(t, "systemctl reload nginx", cfg.PostCommand)
	assert.True(t, cfg.Webhook.Enabled)
	assert.Equal(t, 30, cfg.Webhook.Timeout)
	assert.Equal(t, 3, cfg.Webhook.Retries)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "certautobot.yaml", "provider: aliyun\nrenew_days: 20\n")

	cfg, err := Load(path, map[string]string{
		"DNS_PROVIDER":                   "tencent",
		"CERTAUTOBOT_RENEW_DAYS":         "7",
		"CERTAUTOBOT_PROPAGATION_DELAY":  "2m",
		"CERTAUTOBOT_CERTBOT_EMAIL":      "ops@example.com",
		"CERTAUTOBOT_CERTBOT_EXTRA_ARGS": "--key-type rsa",
		"CERTAUTOBOT_CERTBOT_STAGING":    "true",
	})
	require.NoError(t, err)

	assert.Equal(t, "tencent", cfg.Provider)
	assert.Equal(t, 7, cfg.RenewDays)
	assert.Equal(t, 2*time.Minute, cfg.PropagationDelay)
	assert.Equal(t, "ops@example.com", cfg.Certbot.Email)
	assert.Equal(t, []string{"--key-type", "rsa"}, cfg.Certbot.ExtraArgs)
	assert.True(t, cfg.Certbot.Staging)
}

func TestLoad_ZeroPropagationDelay(t *testing.T) {
	path := writeFile(t, t.TempDir(), "certautobot.yaml", "propagation_delay: 0s\n")
	cfg, err := Load(path, map[string]string{})
	require.NoError(t, err)
	assert.Zero(t, cfg.PropagationDelay)

	cfg, err = Load("", map[string]string{"CERTAUTOBOT_PROPAGATION_DELAY": "0s"})
	require.NoError(t, err)
	assert.Zero(t, cfg.PropagationDelay)

	// 文件里没写时仍使用默认值
	path = writeFile(t, t.TempDir(), "certautobot.yaml", "ttl: 120\n")
	cfg, err = Load(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPropagationDelay, cfg.PropagationDelay)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"), map[string]string{})
	assert.ErrorContains(t, err, "读取配置文件失败")

	bad := writeFile(t, dir, "bad.yaml", "renew_days: [1\n")
	_, err = Load(bad, map[string]string{})
	assert.ErrorContains(t, err, "解析配置文件失败")

	negative := writeFile(t, dir, "negative.yaml", "renew_days: -1\n")
	_, err = Load(negative, map[string]string{})
	assert.ErrorContains(t, err, "renew_days")

	webhook := writeFile(t, dir, "webhook.yaml", "webhook:\n  enabled: true\n")
	_, err = Load(webhook, map[string]string{})
	assert.ErrorContains(t, err, "url")

	_, err = Load("", map[string]string{"CERTAUTOBOT_TTL": "abc"})
	assert.ErrorContains(t, err, "解析环境变量失败")
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "flag.yaml", ResolvePath("flag.yaml", map[string]string{EnvConfigPath: "env.yaml"}))
	assert.Equal(t, "env.yaml", ResolvePath("", map[string]string{EnvConfigPath: "env.yaml"}))

	t.Chdir(t.TempDir())
	assert.Equal(t, "", ResolvePath("", map[string]string{}))

	writeFile(t, ".", DefaultPath, "ttl: 60\n")
	assert.Equal(t, DefaultPath, ResolvePath("", map[string]string{}))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "CERTAUTOBOT_TEST_TOKEN=from-file\nCERTAUTOBOT_TEST_KEEP=from-file\n")

	t.Setenv("CERTAUTOBOT_TEST_KEEP", "from-env")
	t.Setenv("CERTAUTOBOT_TEST_TOKEN", "")
	require.NoError(t, os.Unsetenv("CERTAUTOBOT_TEST_TOKEN"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("CERTAUTOBOT_TEST_TOKEN"))
	assert.Equal(t, "from-env", os.Getenv("CERTAUTOBOT_TEST_KEEP"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}

func TestLoadHookEnv(t *testing.T) {
	h, err := LoadHookEnv(map[string]string{
		"CERTBOT_DOMAIN":     " www.example.com ",
		"CERTBOT_VALIDATION": "token",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", h.Domain)
	assert.Equal(t, "token", h.Validation)
	assert.Empty(t, h.Provider)

	h, err = LoadHookEnv(map[string]string{"CERTBOT_DOMAIN": "example.com", "DNS_PROVIDER": "Huawei"}, false)
	require.NoError(t, err)
	assert.Equal(t, "huawei", h.Provider)

	_, err = LoadHookEnv(map[string]string{"CERTBOT_VALIDATION": "token"}, true)
	assert.ErrorContains(t, err, "CERTBOT_DOMAIN")

	_, err = LoadHookEnv(map[string]string{"CERTBOT_DOMAIN": "example.com"}, true)
	assert.ErrorContains(t, err, "CERTBOT_VALIDATION")
}
