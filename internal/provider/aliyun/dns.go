package aliyun

import (
	"context"
	"errors"
	"fmt"

	alidns "github.com/alibabacloud-go/alidns-20150109/v4/client"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/go-logr/logr"

	"certautobot/internal/provider"
)

const (
	pageSize = 500
	// 免费版解析的最小TTL
	minTTL = 600
)

// DNSProvider 阿里云DNS提供商
type DNSProvider struct {
	client *alidns.Client
	log    logr.Logger
}

// NewDNSProvider 创建阿里云DNS提供商
func NewDNSProvider(log logr.Logger, settings provider.Settings) (*DNSProvider, error) {
	endpoint := "alidns.cn-hangzhou.aliyuncs.com"
	if region := settings[EnvRegion]; region != "" {
		endpoint = fmt.Sprintf("alidns.%s.aliyuncs.com", region)
	}

	clientConfig, err := newConfig(settings, endpoint)
	if err != nil {
		return nil, err
	}

	client, err := alidns.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("创建阿里云DNS客户端失败: %w", err)
	}

	return &DNSProvider{client: client, log: log}, nil
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "aliyun"
}

// FetchDomains 列出账号下的域名
func (p *DNSProvider) FetchDomains(ctx context.Context) ([]string, error) {
	var names []string
	for page := int64(1); ; page++ {
		request := &alidns.DescribeDomainsRequest{
			PageNumber: tea.Int64(page),
			PageSize:   tea.Int64(100),
		}

		response, err := p.client.DescribeDomains(request)
		if err != nil {
			return nil, wrapError("获取域名列表失败", err)
		}
		if response.Body == nil || response.Body.Domains == nil || len(response.Body.Domains.Domain) == 0 {
			break
		}

		for _, d := range response.Body.Domains.Domain {
			names = append(names, tea.StringValue(d.DomainName))
		}
		if int64(len(names)) >= tea.Int64Value(response.Body.TotalCount) {
			break
		}
	}
	return names, nil
}

// FetchRecords 列出主域名下的记录
func (p *DNSProvider) FetchRecords(ctx context.Context, rootDomain string) ([]provider.DNSRecord, error) {
	var records []provider.DNSRecord
	for page := int64(1); ; page++ {
		request := &alidns.DescribeDomainRecordsRequest{
			DomainName: tea.String(rootDomain),
			PageNumber: tea.Int64(page),
			PageSize:   tea.Int64(pageSize),
		}

		response, err := p.client.DescribeDomainRecords(request)
		if err != nil {
			return nil, wrapError("获取DNS记录列表失败", err)
		}
		if response.Body == nil || response.Body.DomainRecords == nil || len(response.Body.DomainRecords.Record) == 0 {
			break
		}

		for _, record := range response.Body.DomainRecords.Record {
			records = append(records, provider.DNSRecord{
				ID:   tea.StringValue(record.RecordId),
				Type: tea.StringValue(record.Type),
				Name: tea.StringValue(record.RR),
				Data: tea.StringValue(record.Value),
				TTL:  int(tea.Int64Value(record.TTL)),
			})
		}
		if int64(len(records)) >= tea.Int64Value(response.Body.TotalCount) {
			break
		}
	}
	return records, nil
}

// CreateTXTRecord 添加TXT记录
func (p *DNSProvider) CreateTXTRecord(ctx context.Context, rootDomain, name, value string, ttl int) (*provider.DNSRecord, error) {
	if ttl < minTTL {
		ttl = minTTL
	}

	request := &alidns.AddDomainRecordRequest{
		DomainName: tea.String(rootDomain),
		RR:         tea.String(name),
		Type:       tea.String(provider.RecordTypeTXT),
		Value:      tea.String(value),
		TTL:        tea.Int64(int64(ttl)),
	}

	response, err := p.client.AddDomainRecord(request)
	if err != nil {
		// 完全相同的记录已存在时阿里云拒绝重复添加，视为已创建
		if sdkCode(err) == "DomainRecordDuplicate" {
			return p.findIdentical(ctx, rootDomain, name, value)
		}
		return nil, wrapError("添加DNS记录失败", err)
	}

	record := &provider.DNSRecord{
		ID:   tea.StringValue(response.Body.RecordId),
		Type: provider.RecordTypeTXT,
		Name: name,
		Data: value,
		TTL:  ttl,
	}
	p.log.Info("TXT record created", "domain", rootDomain, "name", name, "id", record.ID)
	return record, nil
}

func (p *DNSProvider) findIdentical(ctx context.Context, rootDomain, name, value string) (*provider.DNSRecord, error) {
	records, err := provider.FindTXTRecords(ctx, p, rootDomain, name)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Data == value {
			p.log.Info("identical TXT record already present", "domain", rootDomain, "name", name, "id", r.ID)
			return &r, nil
		}
	}
	return nil, errors.New("阿里云返回记录重复，但未找到相同的记录")
}

// DeleteTXTRecord 删除记录，记录不存在时返回 false
func (p *DNSProvider) DeleteTXTRecord(ctx context.Context, rootDomain, recordID string) (bool, error) {
	request := &alidns.DeleteDomainRecordRequest{
		RecordId: tea.String(recordID),
	}

	_, err := p.client.DeleteDomainRecord(request)
	if err != nil {
		werr := wrapError("删除DNS记录失败", err)
		if errors.Is(werr, provider.ErrNotFound) {
			return false, nil
		}
		return false, werr
	}

	p.log.Info("TXT record deleted", "domain", rootDomain, "id", recordID)
	return true, nil
}
