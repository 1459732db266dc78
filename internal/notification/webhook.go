// Package notification 通过 Webhook 推送证书事件
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
	"time"

	"github.com/go-logr/logr"

	"certautobot/internal/config"
)

// EventType 事件类型
type EventType string

const (
	EventCertExpiring EventType = "cert_expiring" // 证书进入续期窗口
	EventCertRenewed  EventType = "cert_renewed"  // 证书申请/续期成功
	EventCertFailed   EventType = "cert_failed"   // certbot 执行失败
	EventCertRevoked  EventType = "cert_revoked"  // 证书已吊销
)

// EventData 事件数据
type EventData struct {
	Event     string                 `json:"event"`          // 事件类型
	Domain    string                 `json:"domain"`         // 域名
	Timestamp string                 `json:"timestamp"`      // 时间戳
	Message   string                 `json:"message"`        // 消息
	Data      map[string]interface{} `json:"data,omitempty"` // 额外数据
}

// WebhookNotifier Webhook 通知器，未启用时为 nil，所有方法对 nil 安全
type WebhookNotifier struct {
	config *config.WebhookConfig
	client *http.Client
	log    logr.Logger
	sleep  func(time.Duration)
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(log logr.Logger, cfg *config.WebhookConfig) *WebhookNotifier {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &WebhookNotifier{
		config: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
		log:   log.WithName("webhook"),
		sleep: time.Sleep,
	}
}

// ShouldNotify 检查是否应该发送该事件的通知
func (w *WebhookNotifier) ShouldNotify(eventType EventType) bool {
	if !w.IsEnabled() {
		return false
	}

	// 没有配置事件列表时发送所有事件
	if len(w.config.Events) == 0 {
		return true
	}

	for _, e := range w.config.Events {
		if e == string(eventType) {
			return true
		}
	}
	return false
}

// Notify 发送通知
func (w *WebhookNotifier) Notify(ctx context.Context, eventType EventType, domain, message string, data map[string]interface{}) error {
	if !w.ShouldNotify(eventType) {
		return nil
	}

	eventData := EventData{
		Event:     string(eventType),
		Domain:    domain,
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   message,
		Data:      data,
	}

	body, err := w.buildBody(eventData)
	if err != nil {
		return err
	}

	retries := w.config.Retries
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		if i > 0 {
			// 指数退避：1s, 2s, 4s
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			w.log.Info("webhook delivery failed, retrying", "backoff", backoff.String(), "attempt", i+1, "of", retries)
			w.sleep(backoff)
		}

		if lastErr = w.send(ctx, body); lastErr == nil {
			w.log.Info("webhook delivered", "event", eventType, "domain", domain)
			return nil
		}
	}

	w.log.Error(lastErr, "webhook delivery failed", "event", eventType, "domain", domain, "attempts", retries)
	return lastErr
}

func (w *WebhookNotifier) buildBody(eventData EventData) ([]byte, error) {
	if w.config.BodyTemplate != "" {
		body, err := renderTemplate(w.config.BodyTemplate, eventData)
		if err == nil {
			return body, nil
		}
		// 模板渲染失败时退回默认 JSON 格式
		w.log.Error(err, "failed to render webhook body template")
	}

	body, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("序列化事件数据失败: %w", err)
	}
	return body, nil
}

func (w *WebhookNotifier) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhook 返回错误状态码: %d", resp.StatusCode)
	}
	return nil
}

// renderTemplate 渲染请求体模板
func renderTemplate(tmplStr string, data EventData) ([]byte, error) {
	tmplData := map[string]interface{}{
		"Event":     data.Event,
		"Domain":    data.Domain,
		"Timestamp": data.Timestamp,
		"Message":   data.Message,
		"Data":      data.Data,
	}

	funcMap := template.FuncMap{
		"toJson": func(v interface{}) string {
			b, err := json.Marshal(v)
			if err != nil {
				return "null"
			}
			return string(b)
		},
	}

	tmpl, err := template.New("webhook").Funcs(funcMap).Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("解析模板失败: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tmplData); err != nil {
		return nil, fmt.Errorf("渲染模板失败: %w", err)
	}
	return buf.Bytes(), nil
}

// NotifyCertExpiring 通知证书进入续期窗口
func (w *WebhookNotifier) NotifyCertExpiring(ctx context.Context, domain string, daysRemaining int) error {
	message := fmt.Sprintf("证书即将过期: %s (剩余 %d 天)", domain, daysRemaining)
	return w.Notify(ctx, EventCertExpiring, domain, message, map[string]interface{}{
		"days_remaining": daysRemaining,
	})
}

// NotifyCertRenewed 通知证书申请/续期成功
func (w *WebhookNotifier) NotifyCertRenewed(ctx context.Context, domain, certDir string) error {
	message := fmt.Sprintf("证书申请/续期成功: %s", domain)
	return w.Notify(ctx, EventCertRenewed, domain, message, map[string]interface{}{
		"cert_dir": certDir,
	})
}

// NotifyCertFailed 通知证书申请失败
func (w *WebhookNotifier) NotifyCertFailed(ctx context.Context, domain string, exitCode int, reason string) error {
	message := fmt.Sprintf("证书申请失败: %s", domain)
	return w.Notify(ctx, EventCertFailed, domain, message, map[string]interface{}{
		"exit_code": exitCode,
		"reason":    reason,
	})
}

// NotifyCertRevoked 通知证书已吊销
func (w *WebhookNotifier) NotifyCertRevoked(ctx context.Context, domain string) error {
	message := fmt.Sprintf("证书已吊销: %s", domain)
	return w.Notify(ctx, EventCertRevoked, domain, message, nil)
}

// IsEnabled 检查是否启用
func (w *WebhookNotifier) IsEnabled() bool {
	return w != nil && w.config != nil && w.config.Enabled
}
