package provider

import "context"

// DNSProvider DNS提供商接口
// 所有方法都是同步调用，内部不做重试
type DNSProvider interface {
	// Name 返回提供商名称
	Name() string

	// FetchDomains 列出当前凭证可管理的域名
	FetchDomains(ctx context.Context) ([]string, error)

	// FetchRecords 列出主域名下的所有记录
	FetchRecords(ctx context.Context, rootDomain string) ([]DNSRecord, error)

	// CreateTXTRecord 创建TXT记录，同名记录已存在时仍然追加
	CreateTXTRecord(ctx context.Context, rootDomain, name, value string, ttl int) (*DNSRecord, error)

	// DeleteTXTRecord 按ID删除记录，记录不存在时返回 false 而不是错误
	DeleteTXTRecord(ctx context.Context, rootDomain, recordID string) (bool, error)
}

// FindTXTRecords 查找主域名下指定名称的TXT记录
func FindTXTRecords(ctx context.Context, p DNSProvider, rootDomain, name string) ([]DNSRecord, error) {
	records, err := p.FetchRecords(ctx, rootDomain)
	if err != nil {
		return nil, err
	}

	var matched []DNSRecord
	for _, r := range records {
		if r.Type == RecordTypeTXT && r.Name == name {
			matched = append(matched, r)
		}
	}
	return matched, nil
}
