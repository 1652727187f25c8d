// Package system 实现每个连接上都运行的系统协议
//
//   - identify: 节点身份识别，/ipfs/id/1.0.0 与 /ipfs/id/push/1.0.0
//   - ping: 存活检测，/ipfs/ping/1.0.0
//
// 两者都使用 libp2p 的协议 ID 与报文格式，可与其他 libp2p 实现互通。
package system
