// Package propagation 查询指定DNS服务器，确认验证记录是否已经可见
package propagation

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/miekg/dns"
)

// Checker TXT记录可见性检查器
type Checker struct {
	nameserver string
	client     *dns.Client
	log        logr.Logger
}

// NewChecker 创建检查器，nameserver 未带端口时默认使用53
func NewChecker(log logr.Logger, nameserver string, timeout time.Duration) *Checker {
	if _, _, err := net.SplitHostPort(nameserver); err != nil {
		nameserver = net.JoinHostPort(nameserver, "53")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		nameserver: nameserver,
		client:     &dns.Client{Net: "udp", Timeout: timeout},
		log:        log,
	}
}

// LookupTXT 查询TXT记录，域名不存在时返回空列表
func (c *Checker) LookupTXT(ctx context.Context, fqdn string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)
	m.RecursionDesired = true

	r, _, err := c.client.ExchangeContext(ctx, m, c.nameserver)
	if err != nil {
		return nil, fmt.Errorf("查询 %s 失败: %w", fqdn, err)
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("查询 %s 返回 %s", fqdn, dns.RcodeToString[r.Rcode])
	}

	var values []string
	for _, rr := range r.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values, nil
}

// Visible 检查记录值是否已经可以查到
func (c *Checker) Visible(ctx context.Context, fqdn, value string) (bool, error) {
	values, err := c.LookupTXT(ctx, fqdn)
	if err != nil {
		return false, err
	}

	c.log.V(1).Info("TXT lookup", "name", fqdn, "nameserver", c.nameserver, "values", values)
	for _, v := range values {
		if v == value {
			return true, nil
		}
	}
	return false, nil
}
