// Package identity 节点身份
//
// 身份由 Ed25519 密钥对和从公钥派生的 PeerID 组成。PeerID 是
// 公钥 protobuf 编码的 identity multihash，再做 base58btc 编码，
// 与 libp2p 的节点标识互通。
//
// 中继节点启动时用单字节种子确定性派生身份：
//
//	id, err := identity.Derive(7)
//	fmt.Println(id.PeerID())
package identity
