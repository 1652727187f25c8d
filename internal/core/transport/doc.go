// Package transport 传输层抽象
//
// 传输负责绑定监听地址、接受与发起连接。TCP 连接在交给上层之前必须依次经过
// 安全通道协商与多路复用协商（见 upgrader 包），任一阶段失败的连接直接丢弃；
// QUIC 连接自带 TLS 1.3 与原生多路复用，握手完成即视为已升级。
package transport
