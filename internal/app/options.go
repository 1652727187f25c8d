package app

import (
	"time"

	"go.uber.org/fx"
)

// BootstrapOption Bootstrap 选项
type BootstrapOption func(*Bootstrap)

// WithFxOptions 追加 fx 选项（测试中用于 fx.Populate / fx.Replace）
func WithFxOptions(opts ...fx.Option) BootstrapOption {
	return func(b *Bootstrap) {
		b.fxOptions = append(b.fxOptions, opts...)
	}
}

// WithStartTimeout 启动超时
func WithStartTimeout(d time.Duration) BootstrapOption {
	return func(b *Bootstrap) { b.startTimeout = d }
}

// WithStopTimeout 停止超时
func WithStopTimeout(d time.Duration) BootstrapOption {
	return func(b *Bootstrap) { b.stopTimeout = d }
}
