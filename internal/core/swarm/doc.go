// Package swarm 连接群管理
//
// Swarm 是传输层的门面：持有监听器、拨号用的传输以及全部已升级连接，
// 把连接生命周期变化以 Event 的形式汇入一个 channel，由事件循环消费。
//
// # 连接
//
// 入站连接由传输监听器完成安全协商和多路复用后交给 Swarm；出站连接通过
// Dial（异步，结果以事件返回）或 DialPeer（同步，复用已有连接）建立。
// 每个连接有两个后台协程：
//
//   - 入站流循环：AcceptStream 后用 multistream-select 协商协议，交给已注册的处理器
//   - 关闭监视：会话关闭后移出连接表并发出 ConnectionClosed
//
// 关闭连接会关闭其会话，从而关闭其上所有流（包括中继电路）。
//
// # 事件
//
//	NewListenAddr / ExpiredListenAddr   监听地址（通配地址展开为各接口地址）
//	ListenerClosed                      监听器关闭，Err 非空表示异常
//	IncomingConnection                  入站连接到达
//	IncomingConnectionError             入站连接升级失败
//	ConnectionEstablished               连接建立
//	ConnectionClosed                    连接关闭
//	OutgoingConnectionError             出站拨号失败
//
// # 外部地址
//
// ExternalAddressSet 记录每个节点被观察到的可达地址，本身不加锁，
// 只由事件循环协程持有和修改。
package swarm
