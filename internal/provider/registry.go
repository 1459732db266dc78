package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// Settings 从环境变量读取到的提供商配置，键为环境变量名
type Settings map[string]string

// DNSFactory 创建DNS提供商
type DNSFactory func(log logr.Logger, settings Settings) (DNSProvider, error)

// CertStoreFactory 创建云端证书存储
type CertStoreFactory func(log logr.Logger, settings Settings) (CertStore, error)

// Backend 注册到表中的提供商
type Backend struct {
	Name          string
	CredentialEnv []string // 必需的凭证环境变量
	OptionalEnv   []string // 可选的环境变量 (区域、接口地址等)
	NewDNS        DNSFactory
	NewCertStore  CertStoreFactory // 不提供证书服务的提供商为 nil
}

var (
	mu       sync.Mutex
	backends = make(map[string]Backend)
)

// Register 由各提供商包在 init() 中调用完成注册
func Register(b Backend) {
	mu.Lock()
	defer mu.Unlock()

	key := strings.ToLower(b.Name)
	if _, exists := backends[key]; exists {
		panic(fmt.Sprintf("provider: %q 重复注册", b.Name))
	}
	backends[key] = b
}

// Lookup 按名称查找提供商，不区分大小写
func Lookup(name string) (Backend, error) {
	mu.Lock()
	b, ok := backends[strings.ToLower(name)]
	mu.Unlock()
	if !ok {
		return Backend{}, fmt.Errorf("不支持的DNS提供商: %q (可用: %s)", name, strings.Join(Names(), ", "))
	}
	return b, nil
}

// Names 返回已注册的提供商名称
func Names() []string {
	mu.Lock()
	defer mu.Unlock()

	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadSettings 读取凭证和可选配置，缺少凭证时返回 ErrAuth
func (b Backend) LoadSettings(getenv func(string) string) (Settings, error) {
	settings := make(Settings)

	var missing []string
	for _, key := range b.CredentialEnv {
		v := getenv(key)
		if v == "" {
			missing = append(missing, key)
			continue
		}
		settings[key] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: 未设置 %s", ErrAuth, strings.Join(missing, ", "))
	}

	for _, key := range b.OptionalEnv {
		if v := getenv(key); v != "" {
			settings[key] = v
		}
	}
	return settings, nil
}

// DNS 读取配置并创建DNS提供商
func (b Backend) DNS(log logr.Logger, getenv func(string) string) (DNSProvider, error) {
	settings, err := b.LoadSettings(getenv)
	if err != nil {
		return nil, err
	}
	return b.NewDNS(log, settings)
}

// CertStore 读取配置并创建云端证书存储
func (b Backend) CertStore(log logr.Logger, getenv func(string) string) (CertStore, error) {
	if b.NewCertStore == nil {
		return nil, fmt.Errorf("提供商 %s 不支持证书存储", b.Name)
	}
	settings, err := b.LoadSettings(getenv)
	if err != nil {
		return nil, err
	}
	return b.NewCertStore(log, settings)
}
