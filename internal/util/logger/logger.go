// Package logger 提供中继节点的子系统日志
//
// 基于 log/slog，每个子系统一个 Logger，级别可按子系统单独调整：
//
//	var log = logger.Logger("relay")
//	log.Info("电路已建立", "src", src, "dst", dst)
//
// 环境变量:
//
//	RELAY_LOG_LEVEL=relay=debug,swarm=warn,info
//	RELAY_LOG_FORMAT=json
//	RELAY_LOG_ADD_SOURCE=false
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	registry = struct {
		sync.Mutex
		loggers  map[string]*slog.Logger
		handlers map[string]*subsystemHandler
	}{
		loggers:  make(map[string]*slog.Logger),
		handlers: make(map[string]*subsystemHandler),
	}

	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
)

// Logger 返回子系统的 Logger，同名子系统共享同一实例
func Logger(subsystem string) *slog.Logger {
	registry.Lock()
	defer registry.Unlock()

	if l, ok := registry.loggers[subsystem]; ok {
		return l
	}

	cfg := ConfigFromEnv()
	h := newHandler(subsystem, cfg.LevelFor(subsystem), cfg)
	l := slog.New(h)
	registry.loggers[subsystem] = l
	registry.handlers[subsystem] = h
	return l
}

// SetLevel 运行时调整子系统级别
//
// 子系统尚未创建时，先创建再设置，保证后续 Logger() 拿到的是新级别。
func SetLevel(subsystem string, level slog.Level) {
	Logger(subsystem)

	registry.Lock()
	h := registry.handlers[subsystem]
	registry.Unlock()
	h.setLevel(level)
}

// SetAllLevels 将所有已创建子系统设为同一级别
func SetAllLevels(level slog.Level) {
	registry.Lock()
	defer registry.Unlock()
	for _, h := range registry.handlers {
		h.setLevel(level)
	}
}

// ApplyLevels 按 "sub=level,default" 格式调整级别，用于配置文件中的 log.level
func ApplyLevels(spec string) {
	if spec == "" {
		return
	}
	cfg := &Config{DefaultLevel: slog.LevelInfo, SubsystemLevels: map[string]slog.Level{}}
	defaultSet := parseLevelSpec(cfg, spec)
	if defaultSet {
		SetAllLevels(cfg.DefaultLevel)
	}
	for sub, lvl := range cfg.SubsystemLevels {
		SetLevel(sub, lvl)
	}
}

// SetOutput 替换全局输出，已创建的 Logger 同样生效
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有记录的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
