package tencent

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	dnspod "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/dnspod/v20210323"

	"certautobot/internal/provider"
)

const (
	pageSize   = 3000
	recordLine = "默认"
	minTTL     = 600
)

// DNSProvider 腾讯云DNS提供商 (DNSPod)
type DNSProvider struct {
	client *dnspod.Client
	log    logr.Logger
}

// NewDNSProvider 创建腾讯云DNS提供商
func NewDNSProvider(log logr.Logger, settings provider.Settings) (*DNSProvider, error) {
	credential, err := newCredential(settings)
	if err != nil {
		return nil, err
	}

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "dnspod.tencentcloudapi.com"

	client, err := dnspod.NewClient(credential, "", cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云DNSPod客户端失败: %w", err)
	}

	return &DNSProvider{client: client, log: log}, nil
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "tencent"
}

// FetchDomains 列出账号下的域名
func (p *DNSProvider) FetchDomains(ctx context.Context) ([]string, error) {
	var names []string
	for offset := int64(0); ; {
		request := dnspod.NewDescribeDomainListRequest()
		request.Offset = common.Int64Ptr(offset)
		request.Limit = common.Int64Ptr(100)

		response, err := p.client.DescribeDomainListWithContext(ctx, request)
		if err != nil {
			return nil, wrapError("获取域名列表失败", err)
		}
		if response.Response == nil || len(response.Response.DomainList) == 0 {
			break
		}

		for _, d := range response.Response.DomainList {
			if d.Name != nil {
				names = append(names, *d.Name)
			}
		}
		offset += int64(len(response.Response.DomainList))

		info := response.Response.DomainCountInfo
		if info == nil || info.AllTotal == nil || uint64(offset) >= *info.AllTotal {
			break
		}
	}
	return names, nil
}

// FetchRecords 列出主域名下的记录
func (p *DNSProvider) FetchRecords(ctx context.Context, rootDomain string) ([]provider.DNSRecord, error) {
	var records []provider.DNSRecord
	for offset := uint64(0); ; {
		request := dnspod.NewDescribeRecordListRequest()
		request.Domain = common.StringPtr(rootDomain)
		request.Offset = common.Uint64Ptr(offset)
		request.Limit = common.Uint64Ptr(pageSize)

		response, err := p.client.DescribeRecordListWithContext(ctx, request)
		if err != nil {
			// 记录列表为空时腾讯云返回错误
			if isNoRecord(err) {
				break
			}
			return nil, wrapError("获取DNS记录列表失败", err)
		}
		if response.Response == nil || len(response.Response.RecordList) == 0 {
			break
		}

		for _, record := range response.Response.RecordList {
			rec := provider.DNSRecord{}
			if record.RecordId != nil {
				rec.ID = strconv.FormatUint(*record.RecordId, 10)
			}
			if record.Name != nil {
				rec.Name = *record.Name
			}
			if record.Type != nil {
				rec.Type = *record.Type
			}
			if record.Value != nil {
				rec.Data = *record.Value
			}
			if record.TTL != nil {
				rec.TTL = int(*record.TTL)
			}
			records = append(records, rec)
		}
		offset += uint64(len(response.Response.RecordList))

		info := response.Response.RecordCountInfo
		if info == nil || info.TotalCount == nil || offset >= *info.TotalCount {
			break
		}
	}
	return records, nil
}

// isNoRecord 记录列表为空，区别于域名不存在
func isNoRecord(err error) bool {
	var sdkErr interface{ GetCode() string }
	if errors.As(err, &sdkErr) {
		return sdkErr.GetCode() == "ResourceNotFound.NoDataOfRecord"
	}
	return false
}

// CreateTXTRecord 添加TXT记录
func (p *DNSProvider) CreateTXTRecord(ctx context.Context, rootDomain, name, value string, ttl int) (*provider.DNSRecord, error) {
	if ttl < minTTL {
		ttl = minTTL
	}

	request := dnspod.NewCreateRecordRequest()
	request.Domain = common.StringPtr(rootDomain)
	request.SubDomain = common.StringPtr(name)
	request.RecordType = common.StringPtr(provider.RecordTypeTXT)
	request.RecordLine = common.StringPtr(recordLine)
	request.Value = common.StringPtr(value)
	request.TTL = common.Uint64Ptr(uint64(ttl))

	response, err := p.client.CreateRecordWithContext(ctx, request)
	if err != nil {
		return nil, wrapError("添加DNS记录失败", err)
	}

	record := &provider.DNSRecord{
		Type: provider.RecordTypeTXT,
		Name: name,
		Data: value,
		TTL:  ttl,
	}
	if response.Response != nil && response.Response.RecordId != nil {
		record.ID = strconv.FormatUint(*response.Response.RecordId, 10)
	}

	p.log.Info("TXT record created", "domain", rootDomain, "name", name, "id", record.ID)
	return record, nil
}

// DeleteTXTRecord 删除记录，记录不存在时返回 false
func (p *DNSProvider) DeleteTXTRecord(ctx context.Context, rootDomain, recordID string) (bool, error) {
	id, err := strconv.ParseUint(recordID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("无效的记录ID %q: %w", recordID, err)
	}

	request := dnspod.NewDeleteRecordRequest()
	request.Domain = common.StringPtr(rootDomain)
	request.RecordId = common.Uint64Ptr(id)

	if _, err := p.client.DeleteRecordWithContext(ctx, request); err != nil {
		werr := wrapError("删除DNS记录失败", err)
		if errors.Is(werr, provider.ErrNotFound) {
			return false, nil
		}
		return false, werr
	}

	p.log.Info("TXT record deleted", "domain", rootDomain, "id", recordID)
	return true, nil
}
