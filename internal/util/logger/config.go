package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format 输出格式
type Format int

const (
	// FormatText key=value 文本
	FormatText Format = iota
	// FormatJSON 每行一个 JSON 对象
	FormatJSON
)

// Config 日志配置
type Config struct {
	DefaultLevel    slog.Level
	SubsystemLevels map[string]slog.Level
	Format          Format
	AddSource       bool
}

// LevelFor 返回子系统级别，未单独配置时返回默认级别
func (c *Config) LevelFor(subsystem string) slog.Level {
	if lvl, ok := c.SubsystemLevels[subsystem]; ok {
		return lvl
	}
	return c.DefaultLevel
}

var (
	envOnce sync.Once
	envCfg  *Config
)

// ConfigFromEnv 解析 RELAY_LOG_* 环境变量，结果只解析一次
func ConfigFromEnv() *Config {
	envOnce.Do(func() {
		envCfg = &Config{
			DefaultLevel:    slog.LevelInfo,
			SubsystemLevels: make(map[string]slog.Level),
			Format:          FormatText,
		}
		if s := os.Getenv("RELAY_LOG_LEVEL"); s != "" {
			parseLevelSpec(envCfg, s)
		}
		if strings.EqualFold(os.Getenv("RELAY_LOG_FORMAT"), "json") {
			envCfg.Format = FormatJSON
		}
		if s := os.Getenv("RELAY_LOG_ADD_SOURCE"); s != "" {
			envCfg.AddSource = s != "false" && s != "0"
		}
	})
	return envCfg
}

// resetEnvConfig 仅测试使用
func resetEnvConfig() {
	envOnce = sync.Once{}
	envCfg = nil
}

// parseLevelSpec 解析 "sub=level,sub=level,default"，返回是否出现了默认级别
func parseLevelSpec(cfg *Config, spec string) bool {
	defaultSet := false
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sub, name, found := strings.Cut(part, "=")
		if !found {
			if lvl, ok := ParseLevel(part); ok {
				cfg.DefaultLevel = lvl
				defaultSet = true
			}
			continue
		}
		if lvl, ok := ParseLevel(strings.TrimSpace(name)); ok {
			cfg.SubsystemLevels[strings.TrimSpace(sub)] = lvl
		}
	}
	return defaultSet
}

// ParseLevel 解析级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
