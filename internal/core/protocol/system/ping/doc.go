// Package ping 实现存活检测协议
//
// ping 协议用于检测连接是否存活，测量往返延迟（RTT）。
//
// # 协议 ID
//
//	/ipfs/ping/1.0.0
//
// # 消息格式
//
// 请求和响应都是 32 字节的随机数据，响应必须与请求相同。同一条流上可以连续 ping。
//
// # 探测
//
// 每个连接一个 Prober：每隔 Interval 发送一次探测，Timeout 内未收到回显即为失败。
// 成功清零连续失败计数；连续失败次数到达 MaxFailures 时额外发出一次
// EventUnresponsive，直到下一次成功前不会重复。
package ping
