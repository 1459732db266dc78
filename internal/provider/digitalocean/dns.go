package digitalocean

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"certautobot/internal/provider"
)

const (
	// EnvToken API令牌环境变量
	EnvToken = "DIGITALOCEAN_API_TOKEN"
	// EnvAPIURL 接口地址环境变量，默认使用官方地址
	EnvAPIURL = "DIGITALOCEAN_API_URL"

	defaultAPIURL = "https://api.digitalocean.com/v2"
)

func init() {
	provider.Register(provider.Backend{
		Name:          "digitalocean",
		CredentialEnv: []string{EnvToken},
		OptionalEnv:   []string{EnvAPIURL},
		NewDNS: func(log logr.Logger, settings provider.Settings) (provider.DNSProvider, error) {
			return NewDNSProvider(log, settings)
		},
	})
}

// DNSProvider DigitalOcean DNS提供商
type DNSProvider struct {
	baseURL string
	token   string
	client  *http.Client
	log     logr.Logger
}

// NewDNSProvider 创建DigitalOcean DNS提供商
func NewDNSProvider(log logr.Logger, settings provider.Settings) (*DNSProvider, error) {
	token := settings[EnvToken]
	if token == "" {
		return nil, fmt.Errorf("%w: 未设置 %s", provider.ErrAuth, EnvToken)
	}

	baseURL := settings[EnvAPIURL]
	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	return &DNSProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}, nil
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "digitalocean"
}

// apiRecord 接口返回的记录结构
type apiRecord struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
	TTL  int    `json:"ttl"`
}

func (r apiRecord) toRecord() provider.DNSRecord {
	return provider.DNSRecord{
		ID:   strconv.FormatInt(r.ID, 10),
		Type: r.Type,
		Name: r.Name,
		Data: r.Data,
		TTL:  r.TTL,
	}
}

type links struct {
	Pages struct {
		Next string `json:"next"`
	} `json:"pages"`
}

// doRequest 发送请求，target 可以是相对路径或分页返回的完整地址
func (p *DNSProvider) doRequest(ctx context.Context, method, target string, body interface{}) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("digitalocean: 序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = p.baseURL + target
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("digitalocean: 创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	p.log.V(1).Info("executing API request", "method", method, "url", target)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", provider.ErrTransientNetwork, method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: 读取响应失败: %v", provider.ErrTransientNetwork, err)
	}
	return resp.StatusCode, data, nil
}

// FetchDomains 列出账号下的域名
func (p *DNSProvider) FetchDomains(ctx context.Context) ([]string, error) {
	var names []string

	next := "/domains"
	for next != "" {
		status, data, err := p.doRequest(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, &provider.ProviderError{StatusCode: status, Body: string(data)}
		}

		var page struct {
			Domains []struct {
				Name string `json:"name"`
			} `json:"domains"`
			Links links `json:"links"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("digitalocean: 解析域名列表失败: %w", err)
		}

		for _, d := range page.Domains {
			names = append(names, d.Name)
		}
		next = page.Links.Pages.Next
	}

	return names, nil
}

// FetchRecords 列出主域名下的记录
func (p *DNSProvider) FetchRecords(ctx context.Context, rootDomain string) ([]provider.DNSRecord, error) {
	var records []provider.DNSRecord

	next := "/domains/" + url.PathEscape(rootDomain) + "/records"
	for next != "" {
		status, data, err := p.doRequest(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, &provider.ProviderError{StatusCode: status, Body: string(data)}
		}

		var page struct {
			DomainRecords []apiRecord `json:"domain_records"`
			Links         links       `json:"links"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("digitalocean: 解析记录列表失败: %w", err)
		}

		for _, r := range page.DomainRecords {
			records = append(records, r.toRecord())
		}
		next = page.Links.Pages.Next
	}

	return records, nil
}

// CreateTXTRecord 创建TXT记录
func (p *DNSProvider) CreateTXTRecord(ctx context.Context, rootDomain, name, value string, ttl int) (*provider.DNSRecord, error) {
	body := map[string]interface{}{
		"type": provider.RecordTypeTXT,
		"name": name,
		"data": value,
		"ttl":  ttl,
	}

	status, data, err := p.doRequest(ctx, http.MethodPost, "/domains/"+url.PathEscape(rootDomain)+"/records", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, &provider.ProviderError{StatusCode: status, Body: string(data)}
	}

	var result struct {
		DomainRecord apiRecord `json:"domain_record"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("digitalocean: 解析创建结果失败: %w", err)
	}
	if result.DomainRecord.ID == 0 {
		return nil, fmt.Errorf("digitalocean: 创建结果缺少 domain_record.id: %s", string(data))
	}

	record := result.DomainRecord.toRecord()
	p.log.Info("TXT record created", "domain", rootDomain, "name", name, "id", record.ID)
	return &record, nil
}

// DeleteTXTRecord 删除记录，记录不存在时返回 false
func (p *DNSProvider) DeleteTXTRecord(ctx context.Context, rootDomain, recordID string) (bool, error) {
	path := "/domains/" + url.PathEscape(rootDomain) + "/records/" + url.PathEscape(recordID)
	status, data, err := p.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusNoContent:
		p.log.Info("TXT record deleted", "domain", rootDomain, "id", recordID)
		return true, nil
	case http.StatusNotFound:
		p.log.V(1).Info("TXT record already gone", "domain", rootDomain, "id", recordID)
		return false, nil
	default:
		return false, &provider.ProviderError{StatusCode: status, Body: string(data)}
	}
}
