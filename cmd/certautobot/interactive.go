package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"certautobot/internal/domain"
	"certautobot/internal/provider"
)

const (
	choiceCreate    = "新建验证记录"
	choiceOverwrite = "覆盖已有验证记录"
)

var actions = []string{actionRenew, actionRevoke, actionExpiry}

// prompter 终端菜单，输入无效时重新提示
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("输入已结束")
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ask 读取一行输入
func (p *prompter) ask(prompt string) (string, error) {
	fmt.Fprintf(p.out, "%s ", prompt)
	return p.readLine()
}

// choose 显示编号菜单，返回选中项的下标
func (p *prompter) choose(options []string, prompt string) (int, error) {
	for {
		for i, opt := range options {
			fmt.Fprintf(p.out, "%d. %s\n", i+1, opt)
		}
		answer, err := p.ask(prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintln(p.out, "无效的选择，请重新输入")
	}
}

// selection 交互模式的选择结果
type selection struct {
	Spec   domain.Spec
	Action string
}

// runInteractive 依次选择域名、验证记录和操作
func runInteractive(ctx context.Context, p *prompter, dns provider.DNSProvider) (selection, error) {
	fmt.Fprintf(p.out, "正在从 %s 获取域名列表...\n", dns.Name())
	domains, err := dns.FetchDomains(ctx)
	if err != nil {
		return selection{}, fmt.Errorf("获取域名列表失败: %w", err)
	}
	if len(domains) == 0 {
		return selection{}, fmt.Errorf("%s 账号下没有可管理的域名", dns.Name())
	}
	sort.Strings(domains)

	idx, err := p.choose(domains, "请选择域名:")
	if err != nil {
		return selection{}, err
	}
	root := domains[idx]
	fmt.Fprintf(p.out, "已选择域名: %s\n", root)

	subdomain, err := chooseSubdomain(ctx, p, dns, root)
	if err != nil {
		return selection{}, err
	}

	spec, err := domain.Join(root, subdomain)
	if err != nil {
		return selection{}, err
	}

	idx, err = p.choose(actions, "请选择对 "+spec.FQDN+" 的操作:")
	if err != nil {
		return selection{}, err
	}
	return selection{Spec: spec, Action: actions[idx]}, nil
}

func chooseSubdomain(ctx context.Context, p *prompter, dns provider.DNSProvider, root string) (string, error) {
	idx, err := p.choose([]string{choiceCreate, choiceOverwrite}, "请选择:")
	if err != nil {
		return "", err
	}

	if idx == 1 {
		fmt.Fprintf(p.out, "正在获取 %s 的解析记录...\n", root)
		records, err := dns.FetchRecords(ctx, root)
		if err != nil {
			return "", fmt.Errorf("获取 %s 的解析记录失败: %w", root, err)
		}

		var names, subdomains []string
		for _, r := range records {
			if r.Type != provider.RecordTypeTXT {
				continue
			}
			if sub, ok := domain.SubdomainFromChallenge(r.Name); ok {
				names = append(names, fmt.Sprintf("%s (%s)", r.Name, r.Type))
				subdomains = append(subdomains, sub)
			}
		}
		if len(names) > 0 {
			idx, err := p.choose(names, "请选择要覆盖的记录:")
			if err != nil {
				return "", err
			}
			return subdomains[idx], nil
		}
		fmt.Fprintln(p.out, "没有已存在的验证记录，将新建一条")
	}

	sub, err := p.ask("请输入子域名 (例如 www、mail)，留空表示主域名:")
	if err != nil {
		return "", err
	}
	return strings.Trim(sub, "."), nil
}
