// Package app 中继节点的应用编排层
//
// app 包负责：
// - fx 模块组装（身份 → 传输 → 行为 → 事件循环）
// - 生命周期管理（监听、事件循环、指标端点的启动与关闭）
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("app")

const defaultTimeout = 30 * time.Second

// Bootstrap 应用引导程序
type Bootstrap struct {
	config    *config.Config
	fxApp     *fx.App
	fxOptions []fx.Option
	runtime   *Runtime

	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewBootstrap 创建引导程序
func NewBootstrap(cfg *config.Config, opts ...BootstrapOption) *Bootstrap {
	b := &Bootstrap{
		config:       cfg,
		startTimeout: defaultTimeout,
		stopTimeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 校验配置并组装模块（不启动）
//
// 配置错误以 *config.Error 返回，此时尚未创建身份或传输。
func (b *Bootstrap) Build() error {
	if err := b.config.Validate(); err != nil {
		return err
	}
	if b.config.Log.Level != "" {
		logger.ApplyLevels(b.config.Log.Level)
	}

	b.fxApp = fx.New(
		fx.Supply(b.config),
		AllModules(),
		fx.Populate(&b.runtime),
		fx.Options(b.fxOptions...),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)
	if err := b.fxApp.Err(); err != nil {
		return fmt.Errorf("组装模块失败: %w", err)
	}
	return nil
}

// Start 构建并启动节点：绑定监听地址并运行事件循环
func (b *Bootstrap) Start(ctx context.Context) (*Runtime, error) {
	if b.fxApp == nil {
		if err := b.Build(); err != nil {
			return nil, err
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, b.startTimeout)
	defer cancel()
	if err := b.fxApp.Start(startCtx); err != nil {
		return nil, err
	}
	b.runtime.stop = b.Stop

	log.Info("中继节点已启动",
		"peer", b.runtime.PeerID().String(),
		"listen", b.runtime.Swarm.ListenAddrs())
	return b.runtime, nil
}

// Stop 停止应用
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, b.stopTimeout)
	defer cancel()
	return b.fxApp.Stop(stopCtx)
}

// Run 启动节点并阻塞，直到 ctx 取消或事件循环因致命错误退出
//
// 配置错误与监听失败在启动阶段返回；正常取消返回 nil。
func Run(ctx context.Context, cfg *config.Config, opts ...BootstrapOption) error {
	b := NewBootstrap(cfg, opts...)
	rt, err := b.Start(ctx)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-rt.Done():
	}

	stopErr := b.Stop(context.Background())
	if err := rt.Err(); err != nil {
		return err
	}
	return stopErr
}
