package core

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"

	domainpkg "certautobot/internal/domain"
	"certautobot/internal/provider"
)

// Validator 通过线上 TLS 握手读取证书到期时间，实现 provider.CertStore
type Validator struct {
	log     logr.Logger
	timeout time.Duration
	addr    func(domain string) string
}

// NewValidator 创建验证器
func NewValidator(log logr.Logger) *Validator {
	return &Validator{
		log:     log.WithName("tls"),
		timeout: 10 * time.Second,
		addr: func(domain string) string {
			return net.JoinHostPort(domain, "443")
		},
	}
}

// Name 实现 provider.CertStore
func (v *Validator) Name() string {
	return "tls"
}

// CheckCertExpiry 检查证书有效期，返回过期时间和证书覆盖的域名列表
func (v *Validator) CheckCertExpiry(ctx context.Context, domain string) (time.Time, []string, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: v.timeout},
		Config: &tls.Config{
			ServerName:         domain,
			InsecureSkipVerify: true,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", v.addr(domain))
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("连接失败: %w", err)
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, nil, fmt.Errorf("未找到证书")
	}

	cert := certs[0]
	// 收集证书覆盖的所有域名（CN + SANs）
	var domains []string
	if cert.Subject.CommonName != "" {
		domains = append(domains, cert.Subject.CommonName)
	}
	domains = append(domains, cert.DNSNames...)

	return cert.NotAfter, domains, nil
}

// Expiry 返回线上证书的到期时间
// 无法连接或证书不覆盖该域名时返回 provider.ErrNoCertificate，按需要申请处理
func (v *Validator) Expiry(ctx context.Context, domain string) (time.Time, error) {
	expiry, certDomains, err := v.CheckCertExpiry(ctx, domain)
	if err != nil {
		v.log.Info("cannot read served certificate", "domain", domain, "error", err.Error())
		return time.Time{}, fmt.Errorf("%w: %v", provider.ErrNoCertificate, err)
	}

	if !matchDomain(certDomains, domain) {
		v.log.Info("served certificate does not cover domain", "domain", domain, "certDomains", certDomains)
		return time.Time{}, fmt.Errorf("%w: 线上证书域名不匹配 (证书域名: %v)", provider.ErrNoCertificate, certDomains)
	}
	return expiry, nil
}

// matchDomain 检查目标域名是否在证书域名列表中匹配
func matchDomain(certDomains []string, targetDomain string) bool {
	for _, certDomain := range certDomains {
		if domainpkg.MatchDomain(certDomain, targetDomain) {
			return true
		}
	}
	return false
}
