// Package muxer 流多路复用
//
// 在一条安全连接上承载多条相互独立、各自流控的双向字节流，
// 基于 yamux（/yamux/1.0.0）。关闭一条流不影响同一会话中的其他流；
// 会话关闭后所有流上的操作返回 ErrSessionClosed。
package muxer
