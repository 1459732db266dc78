// Package logging 构建全局使用的 logr 日志器
package logging

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 返回输出到 w 的控制台日志器
// verbosity 对应 logr 的 V 级别，0 只输出 Info 和 Error
func New(verbosity int, w io.Writer) logr.Logger {
	if verbosity < 0 {
		verbosity = 0
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeCaller = nil
	encCfg.CallerKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(zapcore.Level(-verbosity)),
	)
	return zapr.NewLogger(zap.New(core))
}
