// Package hook 实现 certbot --manual 模式的 auth / cleanup 钩子
//
// certbot 对每个域名各调用一次钩子进程，只读取退出状态：0 表示成功，
// 非0 会中止该域名的签发。钩子之间不共享状态，所需信息全部来自环境变量。
package hook

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"

	"certautobot/internal/challenge"
	"certautobot/internal/config"
	"certautobot/internal/domain"
	"certautobot/internal/propagation"
	"certautobot/internal/provider"
)

// Runner 钩子执行器
type Runner struct {
	log     logr.Logger
	cfg     *config.Config
	environ map[string]string
	out     io.Writer
	sleep   func(time.Duration)
}

// NewRunner 创建钩子执行器，environ 为进程环境变量
func NewRunner(log logr.Logger, cfg *config.Config, environ map[string]string, out io.Writer) *Runner {
	return &Runner{
		log:     log.WithName("hook"),
		cfg:     cfg,
		environ: environ,
		out:     out,
		sleep:   time.Sleep,
	}
}

func (r *Runner) getenv(key string) string {
	return r.environ[key]
}

// prepare 解析环境变量、拆分域名并创建DNS提供商
// 环境变量未指定提供商时使用配置文件中的 provider
// 缺少凭证时在这里失败，不会发出任何网络请求
func (r *Runner) prepare(requireValidation bool) (config.HookEnv, domain.Spec, provider.DNSProvider, error) {
	h, err := config.LoadHookEnv(r.environ, requireValidation)
	if err != nil {
		return h, domain.Spec{}, nil, err
	}

	if h.Provider == "" && r.cfg != nil {
		h.Provider = r.cfg.Provider
	}
	if h.Provider == "" {
		h.Provider = config.DefaultProvider
	}

	spec, err := domain.Split(h.Domain)
	if err != nil {
		return h, spec, nil, err
	}

	r.log.Info("resolved challenge target",
		"domain", spec.FQDN,
		"provider", h.Provider,
		"root", spec.RootDomain,
		"subdomain", spec.Subdomain,
		"record", spec.ChallengeName(),
	)

	backend, err := provider.Lookup(h.Provider)
	if err != nil {
		return h, spec, nil, err
	}
	dns, err := backend.DNS(r.log.WithName("dns-"+backend.Name), r.getenv)
	if err != nil {
		return h, spec, nil, fmt.Errorf("创建DNS提供商 %s 失败: %w", backend.Name, err)
	}
	return h, spec, dns, nil
}

func (r *Runner) manager(dns provider.DNSProvider) *challenge.Manager {
	opts := []challenge.Option{
		challenge.WithSleep(r.sleep),
	}
	if r.cfg != nil {
		opts = append(opts,
			challenge.WithTTL(r.cfg.TTL),
			challenge.WithPropagationDelay(r.cfg.PropagationDelay),
		)
		if r.cfg.Nameserver != "" {
			opts = append(opts, challenge.WithVerifier(propagation.NewChecker(r.log, r.cfg.Nameserver, 0)))
		}
	}
	return challenge.NewManager(dns, r.log.WithName("challenge"), opts...)
}

// Auth 创建验证记录，失败时返回错误
func (r *Runner) Auth(ctx context.Context) error {
	h, spec, dns, err := r.prepare(true)
	if err != nil {
		return err
	}

	record, err := r.manager(dns).Create(ctx, spec, h.Validation)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "已创建 DNS TXT 记录 %s (ID: %s)\n", spec.ChallengeFQDN(), record.ID)
	return nil
}

// Cleanup 删除验证记录
// 只有查找记录失败时返回错误，单条删除失败只记录日志
func (r *Runner) Cleanup(ctx context.Context) error {
	_, spec, dns, err := r.prepare(false)
	if err != nil {
		return err
	}

	result, err := r.manager(dns).Cleanup(ctx, spec)
	if err != nil {
		return err
	}

	switch {
	case result.Partial():
		r.log.Info("some challenge records could not be deleted", "record", spec.ChallengeFQDN(), "failedIDs", result.FailedIDs)
		fmt.Fprintf(r.out, "已删除 %s 的 %d 条 DNS TXT 记录，%d 条删除失败\n",
			spec.ChallengeFQDN(), result.Deleted, len(result.FailedIDs))
	case result.Deleted > 0:
		fmt.Fprintf(r.out, "已删除 %s 的 %d 条 DNS TXT 记录\n", spec.ChallengeFQDN(), result.Deleted)
	default:
		fmt.Fprintf(r.out, "未找到 %s 的 DNS TXT 验证记录\n", spec.ChallengeFQDN())
	}
	return nil
}
