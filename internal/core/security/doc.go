// Package security 安全通道
//
// 把原始字节流升级为双向认证的加密通道。远端 PeerID 只能通过握手得知，
// 握手前不信任任何关于对端身份的假设。
//
// 子包：
//   - noise: Noise XX（/noise）
//   - tls:   libp2p TLS 1.3（/tls/1.0.0）
//
// 握手失败统一以 *NegotiationError 返回，Kind 区分 HandshakeFailed、
// Timeout、IoError 三类。
package security
