package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth 凭证缺失或无效
	ErrAuth = errors.New("认证失败")

	// ErrTransientNetwork 网络连接失败，由调用方决定是否重试
	ErrTransientNetwork = errors.New("网络连接失败")

	// ErrNotFound 域名或记录不存在
	ErrNotFound = errors.New("资源不存在")

	// ErrNoCertificate 证书存储中没有该域名的证书
	ErrNoCertificate = errors.New("未找到证书")
)

// ProviderError DNS服务商返回的非2xx响应
type ProviderError struct {
	StatusCode int
	Body       string

	// Kind 由SDK错误码归类出的错误 (ErrAuth、ErrNotFound)，为空时按状态码归类
	Kind error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("DNS服务商返回错误状态码 %d: %s", e.StatusCode, e.Body)
}

// Unwrap 使 errors.Is 可以识别认证失败和资源不存在
func (e *ProviderError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// CleanupResult 清理验证记录的结果，部分失败不视为错误
type CleanupResult struct {
	Deleted   int      // 成功删除的记录数
	FailedIDs []string // 删除失败的记录ID
}

// Partial 是否存在删除失败的记录
func (r CleanupResult) Partial() bool {
	return len(r.FailedIDs) > 0
}
