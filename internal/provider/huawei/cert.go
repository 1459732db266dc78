package huawei

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	scm "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/scm/v3"
	scmModel "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/scm/v3/model"
	scmRegion "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/scm/v3/region"

	"certautobot/internal/provider"
)

// CertStore 华为云SSL证书管理服务
type CertStore struct {
	client *scm.ScmClient
	log    logr.Logger
}

// NewCertStore 创建华为云证书存储
func NewCertStore(log logr.Logger, settings provider.Settings) (*CertStore, error) {
	auth, region, err := newCredentials(settings)
	if err != nil {
		return nil, err
	}

	regionObj, err := scmRegion.SafeValueOf(region)
	if err != nil {
		return nil, fmt.Errorf("无效的区域: %s", region)
	}

	client := scm.NewScmClient(
		scm.ScmClientBuilder().
			WithRegion(regionObj).
			WithCredential(auth).
			Build())

	return &CertStore{client: client, log: log}, nil
}

// Name 返回存储名称
func (s *CertStore) Name() string {
	return "huawei"
}

// ListCertificates 列出已签发的证书
func (s *CertStore) ListCertificates(ctx context.Context) ([]provider.CertificateInfo, error) {
	response, err := s.client.ListCertificates(&scmModel.ListCertificatesRequest{})
	if err != nil {
		return nil, wrapError("获取证书列表失败", err)
	}

	var certs []provider.CertificateInfo
	if response.Certificates != nil {
		for _, cert := range *response.Certificates {
			if cert.Status != "ISSUED" {
				continue
			}

			var notAfter time.Time
			if cert.ExpireTime != "" {
				notAfter, _ = time.ParseInLocation("2006-01-02 15:04:05", cert.ExpireTime, time.Local)
			}

			var sans []string
			if cert.Sans != "" {
				sans = strings.Split(cert.Sans, ",")
			}

			certs = append(certs, provider.CertificateInfo{
				CertID:   cert.Id,
				Domain:   cert.Domain,
				Sans:     sans,
				NotAfter: notAfter,
			})
		}
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
