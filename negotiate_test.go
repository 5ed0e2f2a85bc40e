package heapipc

import (
	"math/rand/v2"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNegotiateLayoutInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	cfg := testConfig()

	for i := range 2000 {
		align := uint64(1) << rng.IntN(17)
		slack := uint64(rng.IntN(512))
		backend := &fakeBackend{
			align: align,
			query: func(size uint64, _ gputypes.BufferUsage) AllocationInfo {
				return AllocationInfo{Size: size + slack, Importable: true}
			},
		}
		req := LayoutRequest{
			Mode:      ImportHostPointer,
			Base:      uintptr(rng.Uint64N(1 << 40)),
			HeapSize:  uint64(rng.IntN(1 << 22)),
			ImageSize: cfg.ImageSize(),
			SlotCount: cfg.SlotCount,
		}

		l, err := NegotiateLayout(backend, req)
		if err != nil {
			assert.ErrorIs(t, err, ErrLayoutOverflow, "case %d", i)
			extent := (align - uint64(req.Base)%align) % align
			extent += roundUp(colorBlockUsedSize+slack, align) + uint64(req.SlotCount)*roundUp(req.ImageSize+slack, align)
			assert.Greater(t, extent, req.HeapSize, "case %d rejected a fitting layout", i)
			continue
		}

		assert.Zero(t, (uint64(req.Base)+l.BaseSkip)%align, "case %d base", i)
		assert.Less(t, l.BaseSkip, align, "case %d skip", i)
		assert.Zero(t, l.ColorBlockSize%align, "case %d color", i)
		assert.Zero(t, l.OutputSlotSize%align, "case %d slot", i)
		assert.GreaterOrEqual(t, l.ColorBlockSize, uint64(colorBlockUsedSize))
		assert.GreaterOrEqual(t, l.OutputSlotSize, req.ImageSize)

		extent, ok := l.Extent(req.SlotCount)
		require.True(t, ok)
		assert.LessOrEqual(t, extent, req.HeapSize, "case %d extent", i)
		assert.NoError(t, l.Check(cfg, req.HeapSize))
	}
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

func TestNegotiateLayoutUsesBackendSize(t *testing.T) {
	cfg := testConfig()
	backend := &fakeBackend{
		align: 256,
		query: func(size uint64, usage gputypes.BufferUsage) AllocationInfo {
			if usage == ColorBlockUsage {
				return AllocationInfo{Size: 512, Importable: true}
			}
			return AllocationInfo{Size: size, Importable: true}
		},
	}
	l, err := NegotiateLayout(backend, LayoutRequest{
		Mode: ImportHostPointer, Base: 0x10000, HeapSize: cfg.HeapSize,
		ImageSize: cfg.ImageSize(), SlotCount: cfg.SlotCount,
	})
	require.NoError(t, err)
	assert.Equal(t, Layout{BaseSkip: 0, ColorBlockSize: 512, OutputSlotSize: cfg.ImageSize()}, l)
}

func TestNegotiateLayoutFailures(t *testing.T) {
	cfg := testConfig()
	base := LayoutRequest{
		Mode: ImportHostPointer, Base: 0x1000, HeapSize: cfg.HeapSize,
		ImageSize: cfg.ImageSize(), SlotCount: cfg.SlotCount,
	}

	tests := []struct {
		name    string
		backend *fakeBackend
		req     func(LayoutRequest) LayoutRequest
		want    error
	}{
		{
			name:    "zero alignment",
			backend: &fakeBackend{align: 0},
			want:    ErrBackendFailure,
		},
		{
			name: "dedicated size conflict",
			backend: &fakeBackend{align: 4096, query: func(size uint64, _ gputypes.BufferUsage) AllocationInfo {
				return AllocationInfo{Size: size, Importable: true, DedicatedOnly: true}
			}},
			want: ErrLayoutOverflow,
		},
		{
			name: "not importable",
			backend: &fakeBackend{align: 64, query: func(size uint64, _ gputypes.BufferUsage) AllocationInfo {
				return AllocationInfo{Size: size}
			}},
			want: ErrLayoutOverflow,
		},
		{
			name:    "heap too small",
			backend: &fakeBackend{align: 4096},
			req: func(r LayoutRequest) LayoutRequest {
				r.HeapSize = 4 * 4096
				return r
			},
			want: ErrLayoutOverflow,
		},
		{
			name:    "handle import below page alignment",
			backend: &fakeBackend{align: 64},
			req: func(r LayoutRequest) LayoutRequest {
				r.Mode = ImportDMABuf
				return r
			},
			want: ErrLayoutOverflow,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := base
			if test.req != nil {
				req = test.req(req)
			}
			_, err := NegotiateLayout(test.backend, req)
			assert.ErrorIs(t, err, test.want)
		})
	}
}

func TestNegotiateLayoutDedicatedExact(t *testing.T) {
	cfg := testConfig()
	backend := &fakeBackend{align: 256, query: func(uint64, gputypes.BufferUsage) AllocationInfo {
		return AllocationInfo{Size: 1024, Importable: true, DedicatedOnly: true}
	}}
	l, err := NegotiateLayout(backend, LayoutRequest{
		Mode: ImportHostPointer, HeapSize: cfg.HeapSize,
		ImageSize: cfg.ImageSize(), SlotCount: cfg.SlotCount,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), l.ColorBlockSize)
	assert.Equal(t, uint64(1024), l.OutputSlotSize)
}

func TestNegotiateLayoutHandleImport(t *testing.T) {
	cfg := testConfig()
	l, err := NegotiateLayout(&fakeBackend{align: pagesize}, LayoutRequest{
		Mode: ImportDMABuf, Base: 0x123, HeapSize: cfg.HeapSize,
		ImageSize: cfg.ImageSize(), SlotCount: cfg.SlotCount,
	})
	require.NoError(t, err)
	assert.Zero(t, l.BaseSkip)
	assert.Zero(t, l.ColorBlockSize%pagesize)
	assert.Zero(t, l.OutputSlotSize%pagesize)
}

func TestLayoutExchange(t *testing.T) {
	controller, renderer, err := LinkPair()
	require.NoError(t, err)
	defer controller.Close()
	defer renderer.Close()

	want := Layout{BaseSkip: 3584, ColorBlockSize: 4096, OutputSlotSize: 1440000}

	var g errgroup.Group
	g.Go(func() error {
		return SendLayout(renderer, want)
	})
	got, err := ReceiveLayout(controller)
	require.NoError(t, err)
	require.NoError(t, g.Wait())
	assert.Equal(t, want, got)

	sent, _ := renderer.Counts()
	assert.Equal(t, uint64(3), sent)
}

func TestSendLayoutWideField(t *testing.T) {
	var ch scriptChannel
	err := SendLayout(&ch, Layout{ColorBlockSize: 1 << 32})
	assert.ErrorIs(t, err, ErrLayoutOverflow)
	assert.Len(t, ch.sent, 1)
}

func TestReceiveLayoutShort(t *testing.T) {
	ch := &eofChannel{scriptChannel{replies: []uint32{0, 256}}}
	_, err := ReceiveLayout(ch)
	assert.Error(t, err)
}
