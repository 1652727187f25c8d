// Package eventloop 中继节点的中央事件循环
//
// Loop 单协程消费 Swarm 事件与行为事件，一次完整分派一个事件：
//
//	Idle ──事件到达──> Dispatching ──分派完成──> Idle
//
// 分派规则：
//   - Identify Received：记录本节点被观察到的地址，以及对端宣告的监听地址
//   - NewListenAddr / ExpiredListenAddr：维护当前监听地址
//   - ConnectionEstablished / ConnectionClosed：更新行为集的连接分派表
//   - Ping PeerUnresponsive：按配置关闭该连接
//   - 所有监听器均因错误关闭：致命，Run 返回
//
// 外部地址集只由循环协程读写，其他组件通过 ExternalAddrs 经请求通道查询。
package eventloop
