package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"certautobot/internal/config"
	"certautobot/internal/domain"
	"certautobot/internal/notification"
	"certautobot/internal/provider"
	"certautobot/internal/storage"
)

// Outcome 一次证书操作的结果
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkipped
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failure"
	}
}

// ExitStatus certbot 调用结果
type ExitStatus struct {
	Outcome    Outcome
	Code       int    // certbot 退出码
	StderrTail string // 失败时 stderr 的最后几行
}

// ExitCode 进程退出码，跳过视为成功
func (s ExitStatus) ExitCode() int {
	if s.Outcome != OutcomeFailure {
		return 0
	}
	if s.Code != 0 {
		return s.Code
	}
	return 1
}

// RenewalDecision 续期判断结果
type RenewalDecision struct {
	Eligible      bool
	DaysRemaining int
	Expiry        time.Time // 没有证书时为零值
	Reason        string
}

// HasCertificate 是否找到了现有证书
func (d RenewalDecision) HasCertificate() bool {
	return !d.Expiry.IsZero()
}

// Controller 证书生命周期控制器
// 判断是否需要续期，并以 manual 模式调用 certbot，DNS 验证交给本程序的 hook 子命令
type Controller struct {
	config   *config.Config
	log      logr.Logger
	store    provider.CertStore
	storage  *storage.FileStorage
	runner   Runner
	executor *Executor
	notifier *notification.WebhookNotifier

	dnsProvider string
	executable  string
	now         func() time.Time
}

// ControllerOption 控制器选项
type ControllerOption func(*Controller)

// WithDNSProvider 设置传给 hook 的 DNS 提供商
func WithDNSProvider(name string) ControllerOption {
	return func(c *Controller) {
		if name != "" {
			c.dnsProvider = strings.ToLower(name)
		}
	}
}

// WithExecutable 设置 hook 调用的可执行文件路径
func WithExecutable(path string) ControllerOption {
	return func(c *Controller) {
		c.executable = path
	}
}

// WithClock 替换当前时间
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// WithExecutor 设置执行后置命令的执行器
func WithExecutor(e *Executor) ControllerOption {
	return func(c *Controller) {
		c.executor = e
	}
}

// NewController 创建控制器
func NewController(log logr.Logger, cfg *config.Config, store provider.CertStore, runner Runner, opts ...ControllerOption) *Controller {
	log = log.WithName("controller")
	c := &Controller{
		config:      cfg,
		log:         log,
		store:       store,
		storage:     storage.NewFileStorage(cfg.Certbot.ConfigDir),
		runner:      runner,
		executor:    NewExecutor(log, nil, nil),
		notifier:    notification.NewWebhookNotifier(log, &cfg.Webhook),
		dnsProvider: cfg.Provider,
		now:         time.Now,
	}
	if exe, err := os.Executable(); err == nil {
		c.executable = exe
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckEligibility 判断证书是否需要续期
// 剩余天数小于等于 renew_days 或强制续期时需要续期，没有证书时总是需要申请
func (c *Controller) CheckEligibility(ctx context.Context, fqdn string, force bool) (RenewalDecision, error) {
	threshold := c.config.RenewDays

	expiry, err := c.store.Expiry(ctx, fqdn)
	switch {
	case errors.Is(err, provider.ErrNoCertificate):
		return RenewalDecision{Eligible: true, Reason: "no certificate found"}, nil
	case err != nil && force:
		c.log.Info("cannot read certificate expiry, renewing anyway", "domain", fqdn, "error", err.Error())
		return RenewalDecision{Eligible: true, Reason: "forced renewal"}, nil
	case err != nil:
		return RenewalDecision{}, fmt.Errorf("读取 %s 证书到期时间失败: %w", fqdn, err)
	}

	days := daysUntil(c.now(), expiry)
	d := RenewalDecision{DaysRemaining: days, Expiry: expiry}
	switch {
	case force:
		d.Eligible = true
		d.Reason = fmt.Sprintf("forced renewal (%d days remaining)", days)
	case days <= threshold:
		d.Eligible = true
		d.Reason = fmt.Sprintf("certificate expires in %d days (threshold %d)", days, threshold)
	default:
		d.Reason = fmt.Sprintf("certificate valid for %d more days (threshold %d)", days, threshold)
	}
	return d, nil
}

// IssueOrRenew 按需申请或续期证书
// 不需要续期时返回 OutcomeSkipped 且不调用 certbot；certbot 无法启动时返回错误
func (c *Controller) IssueOrRenew(ctx context.Context, spec domain.Spec, force bool) (ExitStatus, error) {
	decision, err := c.CheckEligibility(ctx, spec.FQDN, force)
	if err != nil {
		return ExitStatus{Outcome: OutcomeFailure}, err
	}

	c.log.Info("renewal decision",
		"domain", spec.FQDN, "eligible", decision.Eligible, "daysRemaining", decision.DaysRemaining, "reason", decision.Reason)
	if !decision.Eligible {
		return ExitStatus{Outcome: OutcomeSkipped}, nil
	}

	if decision.HasCertificate() && !force {
		c.notify(c.notifier.NotifyCertExpiring(ctx, spec.FQDN, decision.DaysRemaining))
	}

	cmd := Command{
		Path: c.config.Certbot.Path,
		Args: c.certonlyArgs(spec, force || decision.HasCertificate()),
		Env:  c.hookEnv(),
	}
	c.log.Info("invoking certbot", "domain", spec.FQDN, "provider", c.dnsProvider)

	status, err := c.run(cmd)
	if err != nil {
		c.notify(c.notifier.NotifyCertFailed(ctx, spec.FQDN, -1, err.Error()))
		return status, err
	}
	if status.Outcome == OutcomeFailure {
		c.log.Info("certbot failed", "domain", spec.FQDN, "exitCode", status.Code)
		c.notify(c.notifier.NotifyCertFailed(ctx, spec.FQDN, status.Code, status.StderrTail))
		return status, nil
	}

	c.log.Info("certificate issued", "domain", spec.FQDN, "certDir", c.storage.GetCertDir(spec.FQDN))

	if err := c.executor.RunPostCommand(c.config.PostCommand, c.storage.Vars(spec.FQDN)); err != nil {
		c.log.Error(err, "post command failed", "domain", spec.FQDN)
	}
	c.notify(c.notifier.NotifyCertRenewed(ctx, spec.FQDN, c.storage.GetCertDir(spec.FQDN)))

	return status, nil
}

// Revoke 吊销证书，不涉及DNS操作
func (c *Controller) Revoke(ctx context.Context, spec domain.Spec) (ExitStatus, error) {
	args := []string{"revoke", "--cert-name", spec.FQDN, "--non-interactive"}
	if c.config.Certbot.DeleteAfterRevoke {
		args = append(args, "--delete-after-revoke")
	} else {
		args = append(args, "--no-delete-after-revoke")
	}
	args = append(args, c.commonArgs()...)

	c.log.Info("revoking certificate", "domain", spec.FQDN)
	status, err := c.run(Command{Path: c.config.Certbot.Path, Args: args})
	if err != nil {
		c.notify(c.notifier.NotifyCertFailed(ctx, spec.FQDN, -1, err.Error()))
		return status, err
	}
	if status.Outcome == OutcomeFailure {
		c.log.Info("certbot revoke failed", "domain", spec.FQDN, "exitCode", status.Code)
		c.notify(c.notifier.NotifyCertFailed(ctx, spec.FQDN, status.Code, status.StderrTail))
		return status, nil
	}

	c.log.Info("certificate revoked", "domain", spec.FQDN)
	c.notify(c.notifier.NotifyCertRevoked(ctx, spec.FQDN))
	return status, nil
}

// Expiry 返回证书剩余天数，只读取不做任何修改
func (c *Controller) Expiry(ctx context.Context, fqdn string) (int, time.Time, error) {
	expiry, err := c.store.Expiry(ctx, fqdn)
	if err != nil {
		return 0, time.Time{}, err
	}
	return daysUntil(c.now(), expiry), expiry, nil
}

func (c *Controller) run(cmd Command) (ExitStatus, error) {
	res, err := c.runner.Run(cmd)
	if err != nil {
		return ExitStatus{Outcome: OutcomeFailure}, err
	}
	if res.ExitCode != 0 {
		return ExitStatus{Outcome: OutcomeFailure, Code: res.ExitCode, StderrTail: res.StderrTail}, nil
	}
	return ExitStatus{Outcome: OutcomeSuccess}, nil
}

func (c *Controller) certonlyArgs(spec domain.Spec, forceRenewal bool) []string {
	args := []string{
		"certonly",
		"--manual",
		"--preferred-challenges=dns",
		"--non-interactive",
		"--agree-tos",
		"--manual-auth-hook", c.hookCommand("auth"),
		"--manual-cleanup-hook", c.hookCommand("cleanup"),
		"-d", spec.FQDN,
		"--cert-name", spec.FQDN,
	}
	if forceRenewal {
		args = append(args, "--force-renewal")
	}
	if c.config.Certbot.Email != "" {
		args = append(args, "--email", c.config.Certbot.Email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}
	if c.config.Certbot.Staging {
		args = append(args, "--staging")
	}
	return append(args, c.commonArgs()...)
}

func (c *Controller) commonArgs() []string {
	var args []string
	if c.config.Certbot.ConfigDir != "" {
		args = append(args, "--config-dir", c.config.Certbot.ConfigDir)
	}
	if c.config.Certbot.WorkDir != "" {
		args = append(args, "--work-dir", c.config.Certbot.WorkDir)
	}
	if c.config.Certbot.LogsDir != "" {
		args = append(args, "--logs-dir", c.config.Certbot.LogsDir)
	}
	return append(args, c.config.Certbot.ExtraArgs...)
}

// hookCommand certbot 通过 shell 执行 hook
func (c *Controller) hookCommand(action string) string {
	return shellQuote(c.executable) + " hook " + action
}

// hookEnv 传给 certbot 的环境变量，hook 子进程会继承
func (c *Controller) hookEnv() []string {
	env := []string{"DNS_PROVIDER=" + c.dnsProvider}
	if c.config.Path != "" {
		path := c.config.Path
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		env = append(env, config.EnvConfigPath+"="+path)
	}
	return env
}

func (c *Controller) notify(err error) {
	if err != nil {
		c.log.Error(err, "webhook notification failed")
	}
}

func daysUntil(now, expiry time.Time) int {
	return int(expiry.Sub(now).Hours() / 24)
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`&;|<>()*?[]#~!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
