package noise

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

const payloadSigPrefix = "noise-libp2p-static-key:"

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// handshake 执行 XX 握手并返回加密连接
func handshake(conn net.Conn, id *identity.Identity, initiator bool) (*secureConn, error) {
	static, err := staticKeypair(id)
	if err != nil {
		return nil, err
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	pubBytes, err := identity.MarshalPublicKey(id.PublicKey())
	if err != nil {
		return nil, err
	}
	local := (&handshakePayload{
		IdentityKey: pubBytes,
		IdentitySig: id.Sign(append([]byte(payloadSigPrefix), static.Public...)),
	}).marshal()

	var (
		send, recv *noise.CipherState
		remote     []byte
	)
	if initiator {
		send, recv, remote, err = initiatorFlow(conn, hs, local)
	} else {
		send, recv, remote, err = responderFlow(conn, hs, local)
	}
	if err != nil {
		return nil, err
	}

	remotePub, err := verifyPayload(remote, hs.PeerStatic())
	if err != nil {
		return nil, err
	}

	return &secureConn{
		Conn:       conn,
		send:       send,
		recv:       recv,
		localPeer:  id.PeerID(),
		remotePeer: remotePub.PeerID(),
		remotePub:  remotePub,
	}, nil
}

// initiatorFlow 发起方三轮消息，返回 (发送, 接收, 对端 payload)
func initiatorFlow(conn net.Conn, hs *noise.HandshakeState, payload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 1: %w", err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 1: %w", err)
	}

	msg, err = readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 2: %w", err)
	}
	remote, _, _, err := hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 2: %w", err)
	}

	msg, cs1, cs2, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 3: %w", err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 3: %w", err)
	}
	return cs1, cs2, remote, nil
}

// responderFlow 响应方三轮消息，CipherState 顺序与发起方相反
func responderFlow(conn net.Conn, hs *noise.HandshakeState, payload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 1: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg); err != nil {
		return nil, nil, nil, fmt.Errorf("read message 1: %w", err)
	}

	msg, _, _, err = hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 2: %w", err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 2: %w", err)
	}

	msg, err = readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 3: %w", err)
	}
	remote, cs1, cs2, err := hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 3: %w", err)
	}
	return cs2, cs1, remote, nil
}

// verifyPayload 校验身份公钥对静态公钥的签名
func verifyPayload(data, remoteStatic []byte) (*identity.PublicKey, error) {
	if len(remoteStatic) != 32 {
		return nil, fmt.Errorf("invalid remote static key length: %d", len(remoteStatic))
	}
	var p handshakePayload
	if err := p.unmarshal(data); err != nil {
		return nil, err
	}
	pub, err := identity.UnmarshalPublicKey(p.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("remote identity key: %w", err)
	}
	if !pub.Verify(append([]byte(payloadSigPrefix), remoteStatic...), p.IdentitySig) {
		return nil, errors.New("static key not signed by identity key")
	}
	return pub, nil
}

// staticKeypair Ed25519 身份密钥转换为 X25519 静态密钥
func staticKeypair(id *identity.Identity) (noise.DHKey, error) {
	h := sha512.Sum512(id.PrivateKey().Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	point, err := new(edwards25519.Point).SetBytes(id.PublicKey().Bytes())
	if err != nil {
		return noise.DHKey{}, fmt.Errorf("convert public key: %w", err)
	}
	return noise.DHKey{Private: h[:32], Public: point.BytesMontgomery()}, nil
}

func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
