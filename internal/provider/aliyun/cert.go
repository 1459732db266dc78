package aliyun

import (
	"context"
	"fmt"
	"strings"
	"time"

	cas "github.com/alibabacloud-go/cas-20200407/v3/client"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/go-logr/logr"

	"certautobot/internal/provider"
)

// CertStore 阿里云数字证书管理服务，用于查询已上传或已签发证书的到期时间
type CertStore struct {
	client *cas.Client
	log    logr.Logger
}

// NewCertStore 创建阿里云证书存储
func NewCertStore(log logr.Logger, settings provider.Settings) (*CertStore, error) {
	clientConfig, err := newConfig(settings, "cas.aliyuncs.com")
	if err != nil {
		return nil, err
	}

	client, err := cas.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("创建阿里云CAS客户端失败: %w", err)
	}

	return &CertStore{client: client, log: log}, nil
}

// Name 返回存储名称
func (s *CertStore) Name() string {
	return "aliyun"
}

// ListCertificates 列出已签发的证书
func (s *CertStore) ListCertificates(ctx context.Context) ([]provider.CertificateInfo, error) {
	request := &cas.ListUserCertificateOrderRequest{
		OrderType: tea.String("CERT"),
		Status:    tea.String("ISSUED"),
	}

	response, err := s.client.ListUserCertificateOrder(request)
	if err != nil {
		return nil, wrapError("获取证书列表失败", err)
	}

	var certs []provider.CertificateInfo
	for _, cert := range response.Body.CertificateOrderList {
		domain := tea.StringValue(cert.CommonName)
		if domain == "" {
			domain = tea.StringValue(cert.Domain)
		}

		var notAfter time.Time
		if endTime := tea.Int64Value(cert.CertEndTime); endTime > 0 {
			notAfter = time.UnixMilli(endTime)
		}

		var sans []string
		if sansStr := tea.StringValue(cert.Sans); sansStr != "" {
			sans = strings.Split(sansStr, ",")
		}

		certs = append(certs, provider.CertificateInfo{
			CertID:   fmt.Sprintf("%d", tea.Int64Value(cert.CertificateId)),
			Domain:   domain,
			Sans:     sans,
			NotAfter: notAfter,
		})
	}

	s.log.V(1).Info("listed certificates", "count", len(certs))
	return certs, nil
}

// Expiry 返回覆盖该域名的证书中最晚的过期时间
func (s *CertStore) Expiry(ctx context.Context, fqdn string) (time.Time, error) {
	certs, err := s.ListCertificates(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return provider.LatestExpiry(certs, fqdn)
}
