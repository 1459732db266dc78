package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"certautobot/internal/config"
	"certautobot/internal/core"
	"certautobot/internal/domain"
	"certautobot/internal/hook"
	"certautobot/internal/logging"
	"certautobot/internal/provider"
	_ "certautobot/internal/provider/all"
)

const (
	actionRenew  = "renew"
	actionRevoke = "revoke"
	actionExpiry = "expiry"
)

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `DNS-01 证书自动签发工具 (certbot manual 模式)

用法:
  certautobot [flags]                                   # 交互模式
  certautobot --action renew --domain example.com --subdomain www
  certautobot --action revoke --domain www.example.com
  certautobot --action expiry --domain www.example.com
  certautobot hook auth|cleanup                         # 由 certbot 调用

支持的DNS提供商: %s

Flags:
%s`, strings.Join(provider.Names(), ", "), fs.FlagUsages())
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(run(os.Args[1:], env.ToMap(os.Environ()), os.Stdin, os.Stdout, os.Stderr))
}

// run 执行命令并返回进程退出码
func run(args []string, environ map[string]string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "hook" {
		return runHook(args[1:], environ, stdout, stderr)
	}

	fs := pflag.NewFlagSet("certautobot", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "配置文件路径 (默认 $CERTAUTOBOT_CONFIG 或 ./certautobot.yaml)")
	action := fs.String("action", "", "操作: renew, revoke, expiry")
	fqdn := fs.StringP("domain", "d", "", "主域名或完整域名")
	subdomain := fs.StringP("subdomain", "s", "", "子域名，为空时使用 --domain 本身")
	providerName := fs.StringP("provider", "p", "", "DNS提供商 (默认使用配置中的 provider)")
	force := fs.BoolP("force", "f", false, "忽略到期时间强制续期")
	verbose := fs.CountP("verbose", "v", "输出更详细的日志，可重复")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "error: 未知参数 %s\n", strings.Join(fs.Args(), " "))
		return 1
	}

	log := logging.New(*verbose, stderr)

	cfg, err := config.Load(config.ResolvePath(*configPath, environ), environ)
	if err != nil {
		fmt.Fprintf(stderr, "error: 加载配置失败: %v\n", err)
		return 1
	}
	if *providerName != "" {
		cfg.Provider = strings.ToLower(*providerName)
	}

	ctx := context.Background()
	factory := core.NewFactory(log, cfg, func(k string) string { return environ[k] })

	var target selection
	if *action == "" && *fqdn == "" {
		dns, err := factory.GetDNSProvider(cfg.Provider)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		target, err = runInteractive(ctx, newPrompter(stdin, stdout), dns)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	} else {
		if *fqdn == "" {
			fmt.Fprintln(stderr, "error: 必须指定 --domain")
			return 1
		}
		target.Action = *action
		if target.Action == "" {
			target.Action = actionRenew
		}
		target.Spec, err = domain.Join(*fqdn, *subdomain)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}

	store, err := factory.GetCertStore(cfg.CertStore)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	controller := core.NewController(log, cfg, store, core.NewExecutor(log, stdout, stderr),
		core.WithDNSProvider(cfg.Provider))

	return runAction(ctx, log, controller, target, *force, stdout, stderr)
}

func runAction(ctx context.Context, log logr.Logger, controller *core.Controller, target selection, force bool, stdout, stderr io.Writer) int {
	spec := target.Spec
	log.V(1).Info("target resolved", "domain", spec.FQDN, "root", spec.RootDomain, "subdomain", spec.Subdomain, "action", target.Action)

	switch target.Action {
	case actionRenew:
		status, err := controller.IssueOrRenew(ctx, spec, force)
		return report(status, err, "certificate for "+spec.FQDN, stdout, stderr)

	case actionRevoke:
		status, err := controller.Revoke(ctx, spec)
		return report(status, err, "revoke of "+spec.FQDN, stdout, stderr)

	case actionExpiry:
		days, expiry, err := controller.Expiry(ctx, spec.FQDN)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s 的证书将在 %d 天后过期 (%s)\n", spec.FQDN, days, expiry.Format("2006-01-02 15:04:05 MST"))
		return 0

	default:
		fmt.Fprintf(stderr, "error: 不支持的操作 %q (可选: %s)\n", target.Action, strings.Join(actions, ", "))
		return 1
	}
}

func report(status core.ExitStatus, err error, what string, stdout, stderr io.Writer) int {
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return status.ExitCode()
	}

	switch status.Outcome {
	case core.OutcomeSkipped:
		fmt.Fprintf(stdout, "%s: 无需续期，已跳过\n", what)
	case core.OutcomeSuccess:
		fmt.Fprintf(stdout, "%s: 成功\n", what)
	default:
		fmt.Fprintf(stderr, "error: %s 失败，certbot 退出码 %d\n", what, status.Code)
		if status.StderrTail != "" {
			fmt.Fprintln(stderr, status.StderrTail)
		}
	}
	return status.ExitCode()
}

func runHook(args []string, environ map[string]string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("certautobot hook", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.CountP("verbose", "v", "输出更详细的日志，可重复")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "error: 用法: certautobot hook auth|cleanup")
		return 1
	}

	log := logging.New(*verbose, stderr)

	cfg, err := config.Load(config.ResolvePath("", environ), environ)
	if err != nil {
		fmt.Fprintf(stderr, "error: 加载配置失败: %v\n", err)
		return 1
	}

	runner := hook.NewRunner(log, cfg, environ, stdout)
	ctx := context.Background()

	switch fs.Arg(0) {
	case "auth":
		err = runner.Auth(ctx)
	case "cleanup":
		err = runner.Cleanup(ctx)
	default:
		err = fmt.Errorf("未知的钩子 %q", fs.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
