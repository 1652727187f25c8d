// Package upgrader 连接升级
//
// 原始 TCP 连接依次经过：
//
//  1. multistream-select 协商安全协议（/tls/1.0.0、/noise）
//  2. 安全握手，得到对端 PeerID
//  3. multistream-select 协商多路复用（/yamux/1.0.0）
//  4. 建立多路复用会话
//
// 任何一步失败都会关闭原始连接，部分升级的连接不会流出本包。
package upgrader
