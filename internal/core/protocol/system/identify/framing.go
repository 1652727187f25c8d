package identify

import (
	"bufio"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// MaxMessageSize 单条记录上限
const MaxMessageSize = 8 << 10

func writeRecord(w io.Writer, info *Info) error {
	data, err := info.Marshal()
	if err != nil {
		return err
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("identify: record too large (%d bytes)", len(data))
	}
	buf := varint.ToUvarint(uint64(len(data)))
	_, err = w.Write(append(buf, data...))
	return err
}

func readRecord(r io.Reader) (*Info, error) {
	br := bufio.NewReader(r)
	size, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if size > MaxMessageSize {
		return nil, fmt.Errorf("identify: record too large (%d bytes)", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, err
	}
	info := &Info{}
	if err := info.Unmarshal(data); err != nil {
		return nil, err
	}
	return info, nil
}
