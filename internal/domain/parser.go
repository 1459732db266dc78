package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ChallengeLabel DNS-01 验证记录的固定前缀
const ChallengeLabel = "_acme-challenge"

// ErrInvalidDomain 域名格式不正确，不可重试
var ErrInvalidDomain = errors.New("无效的域名")

// Spec 一次操作中解析出的域名各部分，创建后不再修改
type Spec struct {
	FQDN       string // 完整域名 (如 a.b.example.com)
	RootDomain string // 主域名，固定取最后两段 (如 example.com)
	Subdomain  string // 子域名部分 (如 a.b)，主域名本身时为空
}

// Split 将完整域名拆分为主域名和子域名
// 例如: example.com -> (example.com, ""), a.b.example.com -> (example.com, a.b)
// 多级公共后缀 (如 co.uk) 不做特殊处理，主域名始终是最后两段
func Split(fqdn string) (Spec, error) {
	name := strings.TrimSuffix(strings.TrimSpace(fqdn), ".")
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return Spec{}, fmt.Errorf("%w: %q 至少需要两级", ErrInvalidDomain, fqdn)
	}
	for _, p := range parts {
		if p == "" {
			return Spec{}, fmt.Errorf("%w: %q 包含空标签", ErrInvalidDomain, fqdn)
		}
	}

	return Spec{
		FQDN:       name,
		RootDomain: parts[len(parts)-2] + "." + parts[len(parts)-1],
		Subdomain:  strings.Join(parts[:len(parts)-2], "."),
	}, nil
}

// Join 由主域名和子域名组合出完整域名
func Join(rootDomain, subdomain string) (Spec, error) {
	if subdomain == "" {
		return Split(rootDomain)
	}
	return Split(subdomain + "." + rootDomain)
}

// ChallengeName 返回相对于主域名的验证记录名
// 主域名返回 _acme-challenge，子域名返回 _acme-challenge.<子域名>
func (s Spec) ChallengeName() string {
	if s.Subdomain == "" {
		return ChallengeLabel
	}
	return ChallengeLabel + "." + s.Subdomain
}

// ChallengeFQDN 返回验证记录的完整域名
func (s Spec) ChallengeFQDN() string {
	return ChallengeLabel + "." + s.FQDN
}

// SubdomainFromChallenge 从已有验证记录名反推子域名
// 例如: _acme-challenge.www -> www, _acme-challenge -> ""
func SubdomainFromChallenge(recordName string) (string, bool) {
	if recordName == ChallengeLabel {
		return "", true
	}
	if strings.HasPrefix(recordName, ChallengeLabel+".") {
		return strings.TrimPrefix(recordName, ChallengeLabel+"."), true
	}
	return "", false
}

// MatchDomain 检查域名是否匹配（支持通配符）
func MatchDomain(certDomain, targetDomain string) bool {
	certDomain = strings.ToLower(certDomain)
	targetDomain = strings.ToLower(targetDomain)

	// 完全匹配
	if certDomain == targetDomain {
		return true
	}

	// 通配符只覆盖一级
	if strings.HasPrefix(certDomain, "*.") {
		idx := strings.Index(targetDomain, ".")
		return idx > 0 && targetDomain[idx+1:] == strings.TrimPrefix(certDomain, "*.")
	}

	return false
}
