package huawei

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/auth/basic"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/sdkerr"

	"certautobot/internal/provider"
)

const (
	EnvAccessKey = "HUAWEICLOUD_ACCESS_KEY"
	EnvSecretKey = "HUAWEICLOUD_SECRET_KEY"
	EnvRegion    = "HUAWEICLOUD_REGION"

	defaultRegion = "cn-north-4"
)

func init() {
	provider.Register(provider.Backend{
		Name:          "huawei",
		CredentialEnv: []string{EnvAccessKey, EnvSecretKey},
		OptionalEnv:   []string{EnvRegion},
		NewDNS: func(log logr.Logger, settings provider.Settings) (provider.DNSProvider, error) {
			return NewDNSProvider(log, settings)
		},
		NewCertStore: func(log logr.Logger, settings provider.Settings) (provider.CertStore, error) {
			return NewCertStore(log, settings)
		},
	})
}

func newCredentials(settings provider.Settings) (*basic.Credentials, string, error) {
	ak, sk := settings[EnvAccessKey], settings[EnvSecretKey]
	if ak == "" || sk == "" {
		return nil, "", fmt.Errorf("%w: huawei 凭证不完整", provider.ErrAuth)
	}

	auth := basic.NewCredentialsBuilder().
		WithAk(ak).
		WithSk(sk).
		Build()

	region := settings[EnvRegion]
	if region == "" {
		region = defaultRegion
	}
	return auth, region, nil
}

// wrapError 将SDK错误归类到统一的错误类型
func wrapError(op string, err error) error {
	var respErr *sdkerr.ServiceResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("%s: %w: %v", op, provider.ErrTransientNetwork, err)
	}

	perr := &provider.ProviderError{
		StatusCode: respErr.StatusCode,
		Body:       respErr.ErrorCode + ": " + respErr.ErrorMessage,
	}
	if respErr.StatusCode == http.StatusUnauthorized || respErr.StatusCode == http.StatusForbidden {
		perr.Kind = provider.ErrAuth
	}
	return fmt.Errorf("%s: %w", op, perr)
}

// duplicateRecordSetCodes 同名同类型记录集已存在时返回的错误码
var duplicateRecordSetCodes = map[string]bool{
	"DNS.0312": true,
	"DNS.0335": true,
}

// isDuplicateRecordSet 判断创建记录集失败是否因为同名记录集已存在
func isDuplicateRecordSet(err error) bool {
	var respErr *sdkerr.ServiceResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return duplicateRecordSetCodes[respErr.ErrorCode] ||
		strings.Contains(strings.ToLower(respErr.ErrorMessage), "already exist")
}
