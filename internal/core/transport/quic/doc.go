// Package quic QUIC 传输（/udp/<port>/quic-v1）
//
// 使用 libp2p TLS 证书完成认证，连接握手后直接作为已升级连接使用，
// 流由 QUIC 原生提供。监听与拨号共用同一 UDP socket。
package quic
