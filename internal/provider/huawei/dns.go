package huawei

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	dns "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2"
	dnsModel "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/model"
	dnsRegion "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/region"

	"certautobot/internal/provider"
)

// recordSetPageSize 单次列出记录集的数量
const recordSetPageSize = 100

// dnsAPI 是 DNSProvider 用到的 DnsClient 方法子集
type dnsAPI interface {
	ListPublicZones(request *dnsModel.ListPublicZonesRequest) (*dnsModel.ListPublicZonesResponse, error)
	ListRecordSetsByZone(request *dnsModel.ListRecordSetsByZoneRequest) (*dnsModel.ListRecordSetsByZoneResponse, error)
	CreateRecordSet(request *dnsModel.CreateRecordSetRequest) (*dnsModel.CreateRecordSetResponse, error)
	UpdateRecordSet(request *dnsModel.UpdateRecordSetRequest) (*dnsModel.UpdateRecordSetResponse, error)
	DeleteRecordSet(request *dnsModel.DeleteRecordSetRequest) (*dnsModel.DeleteRecordSetResponse, error)
}

// DNSProvider 华为云DNS提供商
// 华为云同名同类型的记录集只能有一个，已存在同名验证记录集时把新值追加到该记录集
type DNSProvider struct {
	client dnsAPI
	log    logr.Logger
}

// NewDNSProvider 创建华为云DNS提供商
func NewDNSProvider(log logr.Logger, settings provider.Settings) (*DNSProvider, error) {
	auth, region, err := newCredentials(settings)
	if err != nil {
		return nil, err
	}

	regionObj, err := dnsRegion.SafeValueOf(region)
	if err != nil {
		return nil, fmt.Errorf("无效的区域: %s", region)
	}

	client := dns.NewDnsClient(
		dns.DnsClientBuilder().
			WithRegion(regionObj).
			WithCredential(auth).
			Build())

	return &DNSProvider{client: client, log: log}, nil
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "huawei"
}

// listZones 返回 Zone 名称(不含末尾点) 到 Zone ID 的映射
func (p *DNSProvider) listZones() (map[string]string, error) {
	response, err := p.client.ListPublicZones(&dnsModel.ListPublicZonesRequest{})
	if err != nil {
		return nil, wrapError("获取Zone列表失败", err)
	}

	zones := make(map[string]string)
	if response.Zones != nil {
		for _, zone := range *response.Zones {
			if zone.Name != nil && zone.Id != nil {
				zones[strings.TrimSuffix(*zone.Name, ".")] = *zone.Id
			}
		}
	}
	return zones, nil
}

// getZoneID 获取主域名的Zone ID
func (p *DNSProvider) getZoneID(rootDomain string) (string, error) {
	zones, err := p.listZones()
	if err != nil {
		return "", err
	}
	id, ok := zones[rootDomain]
	if !ok {
		return "", fmt.Errorf("%w: 未找到域名 %s 的Zone", provider.ErrNotFound, rootDomain)
	}
	return id, nil
}

// FetchDomains 列出账号下的公网域名
func (p *DNSProvider) FetchDomains(ctx context.Context) ([]string, error) {
	zones, err := p.listZones()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(zones))
	for name := range zones {
		names = append(names, name)
	}
	return names, nil
}

// FetchRecords 列出主域名下的记录集
func (p *DNSProvider) FetchRecords(ctx context.Context, rootDomain string) ([]provider.DNSRecord, error) {
	zoneID, err := p.getZoneID(rootDomain)
	if err != nil {
		return nil, err
	}

	recordSets, err := p.listRecordSets(zoneID, nil, nil)
	if err != nil {
		return nil, err
	}

	records := make([]provider.DNSRecord, 0, len(recordSets))
	for _, recordSet := range recordSets {
		rec := provider.DNSRecord{}
		if recordSet.Id != nil {
			rec.ID = *recordSet.Id
		}
		if recordSet.Name != nil {
			rec.Name = relativeName(*recordSet.Name, rootDomain)
		}
		if recordSet.Type != nil {
			rec.Type = *recordSet.Type
		}
		if recordSet.Records != nil && len(*recordSet.Records) > 0 {
			rec.Data = strings.Trim((*recordSet.Records)[0], `"`)
		}
		if recordSet.Ttl != nil {
			rec.TTL = int(*recordSet.Ttl)
		}
		records = append(records, rec)
	}

	return records, nil
}

// listRecordSets 按 offset 翻页列出 Zone 下的全部记录集
func (p *DNSProvider) listRecordSets(zoneID string, name, recordType *string) ([]dnsModel.ListRecordSets, error) {
	var (
		all    []dnsModel.ListRecordSets
		limit  = int32(recordSetPageSize)
		offset int32
	)
	for {
		o := offset
		response, err := p.client.ListRecordSetsByZone(&dnsModel.ListRecordSetsByZoneRequest{
			ZoneId: zoneID,
			Name:   name,
			Type:   recordType,
			Limit:  &limit,
			Offset: &o,
		})
		if err != nil {
			return nil, wrapError("获取DNS记录列表失败", err)
		}

		var page []dnsModel.ListRecordSets
		if response.Recordsets != nil {
			page = *response.Recordsets
		}
		all = append(all, page...)
		offset += int32(len(page))

		if len(page) < recordSetPageSize {
			break
		}
		if response.Metadata != nil && response.Metadata.TotalCount != nil && offset >= *response.Metadata.TotalCount {
			break
		}
	}
	return all, nil
}

// relativeName 将 _acme-challenge.www.example.com. 转换为 _acme-challenge.www
func relativeName(name, rootDomain string) string {
	name = strings.TrimSuffix(name, ".")
	if name == rootDomain {
		return "@"
	}
	return strings.TrimSuffix(name, "."+rootDomain)
}

// CreateTXTRecord 添加TXT记录集
func (p *DNSProvider) CreateTXTRecord(ctx context.Context, rootDomain, name, value string, ttl int) (*provider.DNSRecord, error) {
	zoneID, err := p.getZoneID(rootDomain)
	if err != nil {
		return nil, err
	}

	recordName := name + "." + rootDomain + "."
	ttl32 := int32(ttl)

	request := &dnsModel.CreateRecordSetRequest{
		ZoneId: zoneID,
		Body: &dnsModel.CreateRecordSetRequestBody{
			Name:    recordName,
			Type:    provider.RecordTypeTXT,
			Records: []string{`"` + value + `"`},
			Ttl:     &ttl32,
		},
	}

	response, err := p.client.CreateRecordSet(request)
	if err != nil {
		if !isDuplicateRecordSet(err) {
			return nil, wrapError("添加DNS记录失败", err)
		}
		return p.appendTXTValue(zoneID, rootDomain, name, value, ttl)
	}

	record := &provider.DNSRecord{
		Type: provider.RecordTypeTXT,
		Name: name,
		Data: value,
		TTL:  ttl,
	}
	if response.Id != nil {
		record.ID = *response.Id
	}

	p.log.Info("TXT record created", "domain", rootDomain, "name", name, "id", record.ID)
	return record, nil
}

// appendTXTValue 把验证值追加到已存在的同名TXT记录集
func (p *DNSProvider) appendTXTValue(zoneID, rootDomain, name, value string, ttl int) (*provider.DNSRecord, error) {
	recordName := name + "." + rootDomain + "."
	recordType := provider.RecordTypeTXT
	recordSets, err := p.listRecordSets(zoneID, &recordName, &recordType)
	if err != nil {
		return nil, err
	}

	var existing *dnsModel.ListRecordSets
	for i := range recordSets {
		rs := &recordSets[i]
		if rs.Id != nil && rs.Name != nil && strings.EqualFold(*rs.Name, recordName) &&
			rs.Type != nil && *rs.Type == provider.RecordTypeTXT {
			existing = rs
			break
		}
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: 记录集 %s 已存在但无法列出", provider.ErrNotFound, recordName)
	}

	var current []string
	if existing.Records != nil {
		current = *existing.Records
	}
	merged := mergeTXTValues(current, value)
	ttl32 := int32(ttl)

	_, err = p.client.UpdateRecordSet(&dnsModel.UpdateRecordSetRequest{
		ZoneId:      zoneID,
		RecordsetId: *existing.Id,
		Body: &dnsModel.UpdateRecordSetReq{
			Name:    &recordName,
			Type:    &recordType,
			Ttl:     &ttl32,
			Records: &merged,
		},
	})
	if err != nil {
		return nil, wrapError("更新DNS记录集失败", err)
	}

	p.log.Info("TXT value appended to existing record set", "domain", rootDomain, "name", name, "id", *existing.Id, "values", len(merged))
	return &provider.DNSRecord{
		ID:   *existing.Id,
		Type: provider.RecordTypeTXT,
		Name: name,
		Data: value,
		TTL:  ttl,
	}, nil
}

// mergeTXTValues 返回追加了带引号新值的记录列表，已存在则原样返回
func mergeTXTValues(current []string, value string) []string {
	quoted := `"` + value + `"`
	merged := slices.Clone(current)
	if slices.Contains(merged, quoted) {
		return merged
	}
	return append(merged, quoted)
}

// DeleteTXTRecord 删除记录集，记录不存在时返回 false
func (p *DNSProvider) DeleteTXTRecord(ctx context.Context, rootDomain, recordID string) (bool, error) {
	zoneID, err := p.getZoneID(rootDomain)
	if err != nil {
		return false, err
	}

	request := &dnsModel.DeleteRecordSetRequest{
		ZoneId:      zoneID,
		RecordsetId: recordID,
	}

	if _, err := p.client.DeleteRecordSet(request); err != nil {
		werr := wrapError("删除DNS记录失败", err)
		if errors.Is(werr, provider.ErrNotFound) {
			return false, nil
		}
		return false, werr
	}

	p.log.Info("TXT record deleted", "domain", rootDomain, "id", recordID)
	return true, nil
}
