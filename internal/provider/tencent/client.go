package tencent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"

	"certautobot/internal/provider"
)

const (
	EnvSecretID  = "TENCENTCLOUD_SECRET_ID"
	EnvSecretKey = "TENCENTCLOUD_SECRET_KEY"
	EnvRegion    = "TENCENTCLOUD_REGION"
)

func init() {
	provider.Register(provider.Backend{
		Name:          "tencent",
		CredentialEnv: []string{EnvSecretID, EnvSecretKey},
		OptionalEnv:   []string{EnvRegion},
		NewDNS: func(log logr.Logger, settings provider.Settings) (provider.DNSProvider, error) {
			return NewDNSProvider(log, settings)
		},
		NewCertStore: func(log logr.Logger, settings provider.Settings) (provider.CertStore, error) {
			return NewCertStore(log, settings)
		},
	})
}

func newCredential(settings provider.Settings) (*common.Credential, error) {
	id, key := settings[EnvSecretID], settings[EnvSecretKey]
	if id == "" || key == "" {
		return nil, fmt.Errorf("%w: tencent 凭证不完整", provider.ErrAuth)
	}
	return common.NewCredential(id, key), nil
}

// isNotFound 腾讯云在记录列表为空或记录不存在时返回错误
func isNotFound(code string) bool {
	return strings.HasPrefix(code, "ResourceNotFound") ||
		strings.Contains(code, "NoRecord") ||
		strings.Contains(code, "NotExist")
}

// wrapError 将SDK错误归类到统一的错误类型
func wrapError(op string, err error) error {
	var sdkErr *sdkerrors.TencentCloudSDKError
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("%s: %w: %v", op, provider.ErrTransientNetwork, err)
	}

	code := sdkErr.GetCode()
	if strings.HasPrefix(code, "ClientError.NetworkError") {
		return fmt.Errorf("%s: %w: %v", op, provider.ErrTransientNetwork, err)
	}

	perr := &provider.ProviderError{Body: code + ": " + sdkErr.GetMessage()}
	switch {
	case strings.HasPrefix(code, "AuthFailure"), strings.HasPrefix(code, "UnauthorizedOperation"):
		perr.Kind = provider.ErrAuth
	case isNotFound(code):
		perr.Kind = provider.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, perr)
}
