// Package storage 读取 certbot 管理的证书文件
// 证书由 certbot 写入 <config_dir>/live/<domain>/，这里只读取路径和到期时间
package storage

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"certautobot/internal/provider"
)

// FileStorage certbot 证书目录
type FileStorage struct {
	baseDir string
}

// NewFileStorage 创建文件存储，configDir 为 certbot 的 --config-dir
func NewFileStorage(configDir string) *FileStorage {
	return &FileStorage{baseDir: filepath.Join(configDir, "live")}
}

// Name 实现 provider.CertStore
func (s *FileStorage) Name() string {
	return "certbot"
}

// GetCertDir 获取证书目录
func (s *FileStorage) GetCertDir(domain string) string {
	return filepath.Join(s.baseDir, domain)
}

// GetCertPath 获取证书路径
func (s *FileStorage) GetCertPath(domain string) string {
	return filepath.Join(s.baseDir, domain, "cert.pem")
}

// GetKeyPath 获取私钥路径
func (s *FileStorage) GetKeyPath(domain string) string {
	return filepath.Join(s.baseDir, domain, "privkey.pem")
}

// GetFullchainPath 获取完整证书链路径
func (s *FileStorage) GetFullchainPath(domain string) string {
	return filepath.Join(s.baseDir, domain, "fullchain.pem")
}

// GetChainPath 获取中间证书路径
func (s *FileStorage) GetChainPath(domain string) string {
	return filepath.Join(s.baseDir, domain, "chain.pem")
}

// Vars 后置命令可用的变量
func (s *FileStorage) Vars(domain string) map[string]string {
	return map[string]string{
		"DOMAIN":         domain,
		"CERT_DIR":       s.GetCertDir(domain),
		"CERT_FILE":      s.GetCertPath(domain),
		"KEY_FILE":       s.GetKeyPath(domain),
		"FULLCHAIN_FILE": s.GetFullchainPath(domain),
	}
}

// Expiry 读取本地证书的到期时间，证书不存在时返回 provider.ErrNoCertificate
func (s *FileStorage) Expiry(_ context.Context, domain string) (time.Time, error) {
	path := s.GetCertPath(domain)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %s", provider.ErrNoCertificate, path)
		}
		return time.Time{}, fmt.Errorf("读取证书失败: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return time.Time{}, fmt.Errorf("证书文件 %s 不是有效的PEM证书", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析证书 %s 失败: %w", path, err)
	}
	return cert.NotAfter, nil
}
