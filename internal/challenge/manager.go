// Package challenge 管理 DNS-01 验证记录的创建和清理
//
// 创建和清理分别由两次独立的钩子进程执行，之间没有共享内存，
// 清理时按确定的记录名重新查找目标，而不是依赖创建时返回的记录ID。
package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"certautobot/internal/domain"
	"certautobot/internal/provider"
)

const (
	DefaultTTL              = 60
	DefaultPropagationDelay = 10 * time.Second
)

// Verifier 检查记录是否已经在DNS中可见
type Verifier interface {
	Visible(ctx context.Context, fqdn, value string) (bool, error)
}

// Manager 验证记录管理器
type Manager struct {
	dns      provider.DNSProvider
	log      logr.Logger
	ttl      int
	delay    time.Duration
	verifier Verifier
	sleep    func(time.Duration)
}

// Option 管理器选项
type Option func(*Manager)

// WithTTL 设置记录TTL
func WithTTL(ttl int) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithPropagationDelay 设置创建后的固定等待时间
func WithPropagationDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.delay = d
		}
	}
}

// WithVerifier 等待结束后额外检查记录是否可见，只记录日志，不影响结果
func WithVerifier(v Verifier) Option {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithSleep 替换等待函数
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Manager) {
		m.sleep = sleep
	}
}

// NewManager 创建验证记录管理器
func NewManager(dns provider.DNSProvider, log logr.Logger, opts ...Option) *Manager {
	m := &Manager{
		dns:   dns,
		log:   log,
		ttl:   DefaultTTL,
		delay: DefaultPropagationDelay,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create 追加一条验证记录并等待传播
// 不预先检查同名记录，之前失败残留的记录由 Cleanup 统一删除
func (m *Manager) Create(ctx context.Context, spec domain.Spec, value string) (*provider.DNSRecord, error) {
	name := spec.ChallengeName()
	m.log.Info("creating challenge record",
		"fqdn", spec.FQDN, "root", spec.RootDomain, "subdomain", spec.Subdomain, "record", name, "provider", m.dns.Name())

	record, err := m.dns.CreateTXTRecord(ctx, spec.RootDomain, name, value, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("创建验证记录 %s.%s 失败: %w", name, spec.RootDomain, err)
	}
	m.log.Info("challenge record created", "record", name, "id", record.ID)

	if m.delay > 0 {
		m.log.Info("waiting for DNS propagation", "delay", m.delay.String())
		m.sleep(m.delay)
	}

	if m.verifier != nil {
		visible, err := m.verifier.Visible(ctx, spec.ChallengeFQDN(), value)
		switch {
		case err != nil:
			m.log.Info("propagation check failed", "name", spec.ChallengeFQDN(), "error", err.Error())
		case visible:
			m.log.Info("challenge record visible", "name", spec.ChallengeFQDN())
		default:
			m.log.Info("challenge record not visible yet", "name", spec.ChallengeFQDN())
		}
	}

	return record, nil
}

// Cleanup 删除所有同名验证记录
// 单条记录删除失败不会中断其余记录，失败的ID记录在结果中
func (m *Manager) Cleanup(ctx context.Context, spec domain.Spec) (provider.CleanupResult, error) {
	var result provider.CleanupResult

	name := spec.ChallengeName()
	m.log.Info("cleaning up challenge records",
		"fqdn", spec.FQDN, "root", spec.RootDomain, "subdomain", spec.Subdomain, "record", name, "provider", m.dns.Name())

	records, err := provider.FindTXTRecords(ctx, m.dns, spec.RootDomain, name)
	if err != nil {
		return result, fmt.Errorf("查找验证记录 %s.%s 失败: %w", name, spec.RootDomain, err)
	}
	if len(records) == 0 {
		m.log.Info("no matching challenge records found", "record", name)
		return result, nil
	}

	for _, r := range records {
		deleted, err := m.dns.DeleteTXTRecord(ctx, spec.RootDomain, r.ID)
		switch {
		case err != nil:
			m.log.Error(err, "failed to delete challenge record", "record", name, "id", r.ID)
			result.FailedIDs = append(result.FailedIDs, r.ID)
		case deleted:
			result.Deleted++
		default:
			m.log.V(1).Info("challenge record already removed", "record", name, "id", r.ID)
		}
	}

	m.log.Info("cleanup finished", "record", name, "deleted", result.Deleted, "failed", len(result.FailedIDs))
	return result, nil
}
