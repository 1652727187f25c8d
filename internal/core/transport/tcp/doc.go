// Package tcp TCP 传输
//
// 地址形如 /ip4/0.0.0.0/tcp/4001、/ip6/::/tcp/4001 或 /dns4/host/tcp/4001。
// 入站连接在监听器内部并发升级，慢速握手不会阻塞后续 accept。
package tcp
