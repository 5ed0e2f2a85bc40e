package heapipc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 16, 16
	cfg.SlotCount = 4
	cfg.HeapSize = 1 << 20
	return cfg
}

func TestLayoutExtent(t *testing.T) {
	l := Layout{BaseSkip: 64, ColorBlockSize: 256, OutputSlotSize: 1024}
	extent, ok := l.Extent(4)
	require.True(t, ok)
	assert.Equal(t, uint64(64+256+4*1024), extent)

	_, ok = Layout{OutputSlotSize: math.MaxUint64 / 2}.Extent(4)
	assert.False(t, ok)
	_, ok = Layout{BaseSkip: math.MaxUint64, ColorBlockSize: 1}.Extent(0)
	assert.False(t, ok)
}

func TestLayoutCheck(t *testing.T) {
	cfg := testConfig()
	image := cfg.ImageSize()

	tests := []struct {
		name   string
		layout Layout
		heap   uint64
		ok     bool
	}{
		{"exact fit", Layout{0, 16, image}, 16 + 4*image, true},
		{"with skip", Layout{4032, 4096, 4096}, 1 << 20, true},
		{"small color block", Layout{0, 8, image}, 1 << 20, false},
		{"small slot", Layout{0, 16, image - 4}, 1 << 20, false},
		{"one byte over", Layout{0, 16, image}, 16 + 4*image - 1, false},
		{"wide field", Layout{1 << 32, 16, image}, math.MaxUint64, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.layout.Check(cfg, test.heap)
			if test.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrLayoutOverflow)
			}
		})
	}
}

func TestArenaRegions(t *testing.T) {
	cfg := testConfig()
	mem := make([]byte, cfg.HeapSize)
	layout := Layout{BaseSkip: 48, ColorBlockSize: 256, OutputSlotSize: 1024}

	arena, err := NewArena(layout, cfg, cfg.HeapSize, mem)
	require.NoError(t, err)
	assert.Equal(t, cfg.SlotCount, arena.SlotCount())
	assert.Equal(t, layout, arena.Layout())

	regions := arena.Regions()
	require.Len(t, regions, cfg.SlotCount+1)
	assert.Equal(t, Region{Offset: 48, Length: 256}, regions[0])
	for i := 1; i < len(regions); i++ {
		assert.Equal(t, regions[i-1].End(), regions[i].Offset, "region %d not contiguous", i)
		assert.Equal(t, uint64(1024), regions[i].Length)
	}

	slot, err := arena.OutputSlot(3)
	require.NoError(t, err)
	assert.Len(t, slot, 1024)
	assert.Equal(t, 1024, cap(slot))

	_, err = arena.SlotRegion(cfg.SlotCount)
	assert.ErrorIs(t, err, ErrInvalidOp)
	_, err = arena.SlotRegion(-1)
	assert.ErrorIs(t, err, ErrInvalidOp)
}

func TestArenaWithoutMapping(t *testing.T) {
	cfg := testConfig()
	arena, err := NewArena(Layout{0, 4096, 4096}, cfg, cfg.HeapSize, nil)
	require.NoError(t, err)
	assert.Nil(t, arena.ColorBlock())

	_, err = NewArena(Layout{0, 4096, 4096}, cfg, cfg.HeapSize, make([]byte, 4096))
	assert.ErrorIs(t, err, ErrLayoutOverflow)
}

func TestColorBlockEncoding(t *testing.T) {
	block := make([]byte, colorBlockUsedSize)
	rgba := [4]float32{0.25, 1, 0, 1}
	WriteColor(block, rgba)
	assert.Equal(t, rgba, ReadColor(block))
}
