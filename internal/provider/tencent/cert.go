package tencent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	ssl "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/ssl/v20191205"

	"certautobot/internal/provider"
)

// 证书状态：已通过
const statusIssued = 1

// CertStore 腾讯云SSL证书服务
type CertStore struct {
	client *ssl.Client
	log    logr.Logger
}

// NewCertStore 创建腾讯云证书存储
func NewCertStore(log logr.Logger, settings provider.Settings) (*CertStore, error) {
	credential, err := newCredential(settings)
	if err != nil {
		return nil, err
	}

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "ssl.tencentcloudapi.com"

	region := settings[EnvRegion]
	if region == "" {
		region = "ap-guangzhou"
	}

	client, err := ssl.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云SSL客户端失败: %w", err)
	}

	return &CertStore{client: client, log: log}, nil
}

// Name 返回存储名称
func (s *CertStore) Name() string {
	return "tencent"
}

// ListCertificates 列出已签发的证书
func (s *CertStore) ListCertificates(ctx context.Context) ([]provider.CertificateInfo, error) {
	request := ssl.NewDescribeCertificatesRequest()
	request.Limit = common.Uint64Ptr(100)

	response, err := s.client.DescribeCertificatesWithContext(ctx, request)
	if err != nil {
		return nil, wrapError("获取证书列表失败", err)
	}

	var certs []provider.CertificateInfo
	for _, cert := range response.Response.Certificates {
		if cert.Status == nil || *cert.Status != statusIssued {
			continue
		}

		var notAfter time.Time
		if cert.CertEndTime != nil {
			notAfter, _ = time.ParseInLocation("2006-01-02 15:04:05", *cert.CertEndTime, time.Local)
		}

		var sans []string
		for _, san := range cert.SubjectAltName {
			if san != nil {
				sans = append(sans, *san)
			}
		}

		info := provider.CertificateInfo{Sans: sans, NotAfter: notAfter}
		if cert.CertificateId != nil {
			info.CertID = *cert.CertificateId
		}
		if cert.Domain != nil {
			info.Domain = *cert.Domain
		}
		certs = append(certs, info)
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
