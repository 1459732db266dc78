package aliyun

import (
	"errors"
	"fmt"
	"strings"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/go-logr/logr"

	"certautobot/internal/provider"
)

const (
	EnvAccessKeyID     = "ALIYUN_ACCESS_KEY_ID"
	EnvAccessKeySecret = "ALIYUN_ACCESS_KEY_SECRET"
	EnvRegion          = "ALIYUN_REGION"
)

func init() {
	provider.Register(provider.Backend{
		Name:          "aliyun",
		CredentialEnv: []string{EnvAccessKeyID, EnvAccessKeySecret},
		OptionalEnv:   []string{EnvRegion},
		NewDNS: func(log logr.Logger, settings provider.Settings) (provider.DNSProvider, error) {
			return NewDNSProvider(log, settings)
		},
		NewCertStore: func(log logr.Logger, settings provider.Settings) (provider.CertStore, error) {
			return NewCertStore(log, settings)
		},
	})
}

// newConfig 根据凭证构建客户端配置
func newConfig(settings provider.Settings, endpoint string) (*openapi.Config, error) {
	id, secret := settings[EnvAccessKeyID], settings[EnvAccessKeySecret]
	if id == "" || secret == "" {
		return nil, fmt.Errorf("%w: aliyun 凭证不完整", provider.ErrAuth)
	}
	return &openapi.Config{
		AccessKeyId:     tea.String(id),
		AccessKeySecret: tea.String(secret),
		Endpoint:        tea.String(endpoint),
	}, nil
}

// sdkCode 提取阿里云SDK错误码
func sdkCode(err error) string {
	var sdkErr *tea.SDKError
	if errors.As(err, &sdkErr) {
		return tea.StringValue(sdkErr.Code)
	}
	return ""
}

// wrapError 将SDK错误归类到统一的错误类型
func wrapError(op string, err error) error {
	var sdkErr *tea.SDKError
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("%s: %w: %v", op, provider.ErrTransientNetwork, err)
	}

	code := tea.StringValue(sdkErr.Code)
	perr := &provider.ProviderError{
		StatusCode: tea.IntValue(sdkErr.StatusCode),
		Body:       code + ": " + tea.StringValue(sdkErr.Message),
	}
	switch {
	case strings.HasPrefix(code, "InvalidAccessKeyId"), code == "SignatureDoesNotMatch", strings.HasPrefix(code, "Forbidden"):
		perr.Kind = provider.ErrAuth
	case strings.HasSuffix(code, "NoExist"), strings.HasSuffix(code, "NotFound"), code == "DomainRecordNotBelongToUser":
		perr.Kind = provider.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, perr)
}
