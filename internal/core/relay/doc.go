// Package relay 实现 Circuit Relay v2 服务端
//
// 中继帮助无法直连的节点（例如都在 NAT 后）互相通信：
//
//  1. 目标节点通过 hop 协议发送 RESERVE，在中继上登记预约
//  2. 源节点通过 hop 协议发送 CONNECT，指明目标节点
//  3. 中继检查权限、容量与目标预约，在到目标的已有连接上打开 stop 流并完成 STOP 握手
//  4. 双方都收到 OK 后，中继在两条流之间双向转发，直到时长或流量限制耗尽
//
// # 协议 ID
//
//	/libp2p/circuit/relay/0.2.0/hop
//	/libp2p/circuit/relay/0.2.0/stop
//
// # 并发
//
// 预约表与电路表只由一个 actor 协程持有，其他协程通过请求 channel 读写。
// 每条电路的转发是独立的一对协程，互不阻塞，也不阻塞事件循环。
//
// # 电路状态
//
//	Requested -> Active -> Expired   时长或流量限制耗尽
//	                    -> Released  任一端 EOF、出错或显式释放
package relay
