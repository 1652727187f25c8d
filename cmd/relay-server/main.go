// Package main 中继节点命令行入口
//
// 使用方法:
//
//	relay-server --secret-key-seed 7 --port 4001
//	relay-server --secret-key-seed 7 --port 4001 --use-ipv6 --enable-quic
//	relay-server --secret-key-seed 7 --port 4001 --config relay.json --metrics-addr 127.0.0.1:9090
//
// 命令行参数覆盖配置文件中的同名字段。配置错误以退出码 2 结束，
// 其他启动失败（如端口被占用）以退出码 1 结束。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/app"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("cmd")

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "配置错误: %v\n", err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			fmt.Fprintf(stderr, "配置错误: %v\n", err)
			return exitConfigError
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return exitFailure
	}
	log.Info("中继节点已退出")
	return exitOK
}

// parseConfig 解析命令行并校验，任何问题都以 *config.Error 返回
func parseConfig(args []string, stderr io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("relay-server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		seed        = fs.Int("secret-key-seed", -1, "密钥种子 (0-255，必填)")
		port        = fs.Int("port", -1, "监听端口（必填，0 表示随机端口）")
		useIPv6     = fs.Bool("use-ipv6", false, "监听 IPv6 (::) 而不是 0.0.0.0")
		enableQUIC  = fs.Bool("enable-quic", false, "在同一端口额外监听 QUIC")
		configFile  = fs.String("config", "", "JSON 配置文件路径")
		metricsAddr = fs.String("metrics-addr", "", "Prometheus 指标监听地址，如 127.0.0.1:9090")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, config.NewError("", err.Error())
	}
	if fs.NArg() > 0 {
		return nil, config.NewError("", fmt.Sprintf("多余的参数 %q", fs.Args()))
	}

	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.FromFile(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch {
	case *seed >= 0 && *seed <= 255:
		cfg.Identity.SetSeed(uint8(*seed))
	case set["secret-key-seed"]:
		return nil, config.NewError("identity.seed", fmt.Sprintf("种子 %d 超出范围 0-255", *seed))
	}

	switch {
	case *port >= 0 && *port <= 65535:
		cfg.Transport.Port = uint16(*port)
	case set["port"]:
		return nil, config.NewError("transport.port", fmt.Sprintf("端口 %d 超出范围 0-65535", *port))
	case *configFile == "":
		return nil, config.NewError("transport.port", "必须指定监听端口")
	}

	if set["use-ipv6"] {
		cfg.Transport.UseIPv6 = *useIPv6
	}
	if set["enable-quic"] {
		cfg.Transport.EnableQUIC = *enableQUIC
	}
	if set["metrics-addr"] {
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
