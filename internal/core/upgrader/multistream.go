package upgrader

import (
	"io"

	mss "github.com/multiformats/go-multistream"
)

// negotiate 服务端在 protos 中选择客户端提议的协议，客户端按顺序提议
func negotiate(rwc io.ReadWriteCloser, protos []string, isServer bool) (string, error) {
	if isServer {
		m := mss.NewMultistreamMuxer[string]()
		for _, p := range protos {
			m.AddHandler(p, nil)
		}
		selected, _, err := m.Negotiate(rwc)
		return selected, err
	}
	return mss.SelectOneOf(protos, rwc)
}
