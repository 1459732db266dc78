package provider

import (
	"context"
	"time"
)

// CertStore 证书存储，只用于读取证书到期时间
type CertStore interface {
	// Name 返回存储名称
	Name() string

	// Expiry 返回域名当前证书的过期时间，没有证书时返回 ErrNoCertificate
	Expiry(ctx context.Context, fqdn string) (time.Time, error)
}
