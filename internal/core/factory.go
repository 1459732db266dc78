package core

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"certautobot/internal/config"
	"certautobot/internal/provider"
	"certautobot/internal/storage"
)

// Factory 提供商工厂
// 凭证通过 getenv 读取，只在创建实例时读取一次
type Factory struct {
	config *config.Config
	log    logr.Logger
	getenv func(string) string

	// 缓存已创建的提供商实例
	certStores   map[string]provider.CertStore
	dnsProviders map[string]provider.DNSProvider
}

// NewFactory 创建工厂
func NewFactory(log logr.Logger, cfg *config.Config, getenv func(string) string) *Factory {
	return &Factory{
		config:       cfg,
		log:          log,
		getenv:       getenv,
		certStores:   make(map[string]provider.CertStore),
		dnsProviders: make(map[string]provider.DNSProvider),
	}
}

// Storage 返回 certbot 证书目录
func (f *Factory) Storage() *storage.FileStorage {
	return storage.NewFileStorage(f.config.Certbot.ConfigDir)
}

// GetCertStore 获取证书存储: certbot、tls 或已注册提供商的云端证书服务
func (f *Factory) GetCertStore(name string) (provider.CertStore, error) {
	name = strings.ToLower(name)
	if s, ok := f.certStores[name]; ok {
		return s, nil
	}

	var s provider.CertStore
	switch name {
	case "certbot":
		s = f.Storage()
	case "tls":
		s = NewValidator(f.log)
	default:
		backend, err := provider.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("不支持的证书存储: %w", err)
		}
		s, err = backend.CertStore(f.log.WithName("cert-"+backend.Name), f.getenv)
		if err != nil {
			return nil, fmt.Errorf("创建证书存储 %s 失败: %w", backend.Name, err)
		}
	}

	f.certStores[name] = s
	return s, nil
}

// GetDNSProvider 获取DNS提供商
func (f *Factory) GetDNSProvider(name string) (provider.DNSProvider, error) {
	name = strings.ToLower(name)
	if p, ok := f.dnsProviders[name]; ok {
		return p, nil
	}

	backend, err := provider.Lookup(name)
	if err != nil {
		return nil, err
	}
	p, err := backend.DNS(f.log.WithName("dns-"+backend.Name), f.getenv)
	if err != nil {
		return nil, fmt.Errorf("创建DNS提供商 %s 失败: %w", backend.Name, err)
	}

	f.dnsProviders[name] = p
	return p, nil
}
