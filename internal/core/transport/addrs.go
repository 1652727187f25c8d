package transport

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// ListenAddrsFor 构造通配监听地址
//
// useIPv6 选择 :: 或 0.0.0.0；enableQUIC 时在同一端口额外监听 udp/quic-v1。
func ListenAddrsFor(useIPv6 bool, port uint16, enableQUIC bool) ([]ma.Multiaddr, error) {
	family, host := "ip4", "0.0.0.0"
	if useIPv6 {
		family, host = "ip6", "::"
	}

	tcp, err := ma.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", family, host, port))
	if err != nil {
		return nil, err
	}
	addrs := []ma.Multiaddr{tcp}

	if enableQUIC {
		quic, err := ma.NewMultiaddr(fmt.Sprintf("/%s/%s/udp/%d/quic-v1", family, host, port))
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, quic)
	}
	return addrs, nil
}
