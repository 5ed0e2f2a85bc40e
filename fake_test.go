package heapipc

import (
	"errors"
	"io"

	"github.com/gogpu/gputypes"
)

// fakeBackend imports host memory as is and paints every pixel of the
// output with the color block's color.
type fakeBackend struct {
	align uint64
	query func(size uint64, usage gputypes.BufferUsage) AllocationInfo
	fail  error // returned by DrawAndExtract

	imports []ImportSource
	draws   int
	closed  bool
}

func (b *fakeBackend) NegotiateAlignment(ImportMode) (uint64, error) {
	return b.align, nil
}

func (b *fakeBackend) QueryAllocationSize(size uint64, usage gputypes.BufferUsage) (AllocationInfo, error) {
	if b.query != nil {
		return b.query(size, usage), nil
	}
	return AllocationInfo{Size: size, Importable: true}, nil
}

func (b *fakeBackend) Import(src ImportSource, _ gputypes.BufferUsage) (Buffer, error) {
	b.imports = append(b.imports, src)
	return &fakeBuffer{mem: src.Host}, nil
}

func (b *fakeBackend) DrawAndExtract(color, output Buffer) error {
	if b.fail != nil {
		return b.fail
	}
	b.draws++
	rgba := ReadColor(color.(*fakeBuffer).mem)
	px := [4]byte{toByte(rgba[2]), toByte(rgba[1]), toByte(rgba[0]), toByte(rgba[3])}
	out := output.(*fakeBuffer).mem
	for i := 0; i+4 <= len(out); i += 4 {
		copy(out[i:], px[:])
	}
	return nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

func toByte(c float32) byte {
	return byte(c*255 + 0.5)
}

type fakeBuffer struct {
	mem []byte
}

func (b *fakeBuffer) Size() uint64 { return uint64(len(b.mem)) }
func (b *fakeBuffer) Close() error { return nil }

// scriptChannel records sent words and replays queued replies
type scriptChannel struct {
	sent    []uint32
	replies []uint32
}

var errScriptDone = errors.New("script exhausted")

func (c *scriptChannel) Send(v uint32) error {
	c.sent = append(c.sent, v)
	return nil
}

func (c *scriptChannel) Recv() (uint32, error) {
	if len(c.replies) == 0 {
		return 0, errScriptDone
	}
	v := c.replies[0]
	c.replies = c.replies[1:]
	return v, nil
}

// eofChannel ends like a closed pipe once its replies run out
type eofChannel struct {
	scriptChannel
}

func (c *eofChannel) Recv() (uint32, error) {
	if len(c.replies) == 0 {
		return 0, io.EOF
	}
	return c.scriptChannel.Recv()
}
