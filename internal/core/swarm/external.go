package swarm

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

// ExternalAddressSet 节点 -> 被观察到的可达地址
//
// 非并发安全，只能由单个协程持有。节点数和每节点地址数都有上限，
// 超出时按最近最少更新淘汰。
type ExternalAddressSet struct {
	maxAddrs int
	peers    *simplelru.LRU[identity.PeerID, *simplelru.LRU[string, ma.Multiaddr]]
}

// NewExternalAddressSet 创建地址集
func NewExternalAddressSet(maxPeers, maxAddrsPerPeer int) (*ExternalAddressSet, error) {
	peers, err := simplelru.NewLRU[identity.PeerID, *simplelru.LRU[string, ma.Multiaddr]](maxPeers, nil)
	if err != nil {
		return nil, err
	}
	return &ExternalAddressSet{maxAddrs: maxAddrsPerPeer, peers: peers}, nil
}

// Add 记录地址，已存在时返回 false
func (s *ExternalAddressSet) Add(p identity.PeerID, addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	addrs, ok := s.peers.Get(p)
	if !ok {
		var err error
		addrs, err = simplelru.NewLRU[string, ma.Multiaddr](s.maxAddrs, nil)
		if err != nil {
			return false
		}
		s.peers.Add(p, addrs)
	}
	key := string(addr.Bytes())
	if addrs.Contains(key) {
		addrs.Get(key)
		return false
	}
	addrs.Add(key, addr)
	return true
}

// Addrs 返回节点的地址，按最近更新在后排列
func (s *ExternalAddressSet) Addrs(p identity.PeerID) []ma.Multiaddr {
	addrs, ok := s.peers.Peek(p)
	if !ok {
		return nil
	}
	return addrs.Values()
}

// Peers 已记录的节点数
func (s *ExternalAddressSet) Peers() int { return s.peers.Len() }

// Len 全部地址数
func (s *ExternalAddressSet) Len() int {
	n := 0
	for _, p := range s.peers.Keys() {
		if addrs, ok := s.peers.Peek(p); ok {
			n += addrs.Len()
		}
	}
	return n
}
