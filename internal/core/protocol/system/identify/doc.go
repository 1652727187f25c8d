// Package identify 实现节点身份识别协议
//
// identify 协议在连接建立后交换节点信息：
//   - 公钥（接收方据此校验对端节点 ID）
//   - 支持的协议列表
//   - 监听地址
//   - 观测地址：发送方看到的接收方地址，接收方借此得知自己的外部地址
//   - 协议版本与代理版本
//
// # 协议 ID
//
//	/ipfs/id/1.0.0        请求方打开流，响应方写出记录后关闭
//	/ipfs/id/push/1.0.0   发送方主动推送记录
//
// # 消息格式
//
// 标准 Identify protobuf 消息，前缀 varint 长度。
package identify
