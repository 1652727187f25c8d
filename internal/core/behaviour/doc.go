// Package behaviour 组合中继节点在每个连接上运行的三个行为
//
// Set 聚合 Relay、Ping、Identify，向 Swarm 注册各自的协议处理器，
// 并把它们的事件汇入同一个通道，由事件循环逐个消费：
//
//	set, err := behaviour.New(sw, id, behaviour.Config{...})
//	for ev := range set.Events() {
//	    switch ev.Kind {
//	    case behaviour.KindIdentify:
//	        ...
//	    }
//	}
//
// # 连接分派表
//
// Set 为每个连接维护 connState（探测器取消函数、身份交换是否完成），
// 由事件循环在 ConnectionEstablished / ConnectionClosed 时调用
// OnConnectionEstablished / OnConnectionClosed 更新。
//
// 协议处理器：
//
//	/ipfs/ping/1.0.0                     -> ping.Handle
//	/ipfs/id/1.0.0                       -> identify.Service.Handle
//	/ipfs/id/push/1.0.0                  -> identify.Service.HandlePush
//	/libp2p/circuit/relay/0.2.0/hop      -> relay.Service.HandleHop
package behaviour
