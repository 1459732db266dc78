package provider

import (
	"fmt"
	"strings"
	"time"

	"certautobot/internal/domain"
)

// RecordTypeTXT TXT记录类型
const RecordTypeTXT = "TXT"

// DNSRecord DNS记录，只在单次操作内使用，不做缓存
type DNSRecord struct {
	ID   string // 记录ID
	Type string // 记录类型
	Name string // 相对主域名的记录名 (如 _acme-challenge.www)
	Data string // 记录值
	TTL  int    // TTL
}

// CertificateInfo 云端证书服务中的证书信息
type CertificateInfo struct {
	CertID   string    // 证书ID
	Domain   string    // 主域名
	Sans     []string  // 备用域名列表
	NotAfter time.Time // 过期时间
}

// Covers 证书是否覆盖指定域名
func (c CertificateInfo) Covers(fqdn string) bool {
	if domain.MatchDomain(c.Domain, fqdn) {
		return true
	}
	for _, san := range c.Sans {
		if domain.MatchDomain(strings.TrimSpace(san), fqdn) {
			return true
		}
	}
	return false
}

// LatestExpiry 返回覆盖该域名的证书中最晚的过期时间
func LatestExpiry(certs []CertificateInfo, fqdn string) (time.Time, error) {
	var latest time.Time
	for _, c := range certs {
		if c.Covers(fqdn) && c.NotAfter.After(latest) {
			latest = c.NotAfter
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoCertificate, fqdn)
	}
	return latest, nil
}
