package heapipc

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(600*600*4), cfg.ImageSize())
	assert.Equal(t, 64, cfg.SlotCount)
	assert.Equal(t, uint64(8<<30), cfg.HeapSize)
	assert.True(t, cfg.Coherent)
	assert.Equal(t, ImportHostPointer, cfg.Import)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"one slot", func(c *Config) { c.SlotCount = 1 }},
		{"empty heap", func(c *Config) { c.HeapSize = 0 }},
		{"huge image", func(c *Config) { c.Width, c.Height = 1 << 16, 1 << 16 }},
		{"unknown mode", func(c *Config) { c.Import = 7 }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseArgs(t *testing.T) {
	cfg := DefaultConfig()
	args, renderer, err := ParseArgs([]string{"udmabuf", "incoherent"}, &cfg)
	require.NoError(t, err)
	assert.False(t, renderer)
	assert.Equal(t, ImportDMABuf, cfg.Import)
	assert.False(t, cfg.Coherent)
	assert.Equal(t, ImportDMABuf, args.Mode)

	cfg = DefaultConfig()
	args, renderer, err = ParseArgs([]string{"renderer-3-4-5", "udmabuf"}, &cfg)
	require.NoError(t, err)
	assert.True(t, renderer)
	assert.Equal(t, RendererArgs{In: 3, Out: 4, Heap: 5, Mode: ImportDMABuf}, args)
	assert.Equal(t, "renderer-3-4-5", args.Token())

	for _, bad := range [][]string{{"renderer-3-4"}, {"renderer-a-b-c"}, {"renderer-3--4-5"}, {"vulkan"}} {
		cfg = DefaultConfig()
		_, _, err = ParseArgs(bad, &cfg)
		assert.Error(t, err, "%v", bad)
	}
}

func TestIsRendererInvocation(t *testing.T) {
	assert.True(t, IsRendererInvocation([]string{"-width=8", "renderer-3-4-5", "memfd"}))
	assert.False(t, IsRendererInvocation([]string{"-test.v", "memfd"}))
}

func TestFlagArgsRoundTrip(t *testing.T) {
	want := DefaultConfig()
	want.Width, want.Height, want.SlotCount = 320, 200, 8

	got := DefaultConfig()
	fs := flag.NewFlagSet("renderer", flag.ContinueOnError)
	got.RegisterFlags(fs)
	require.NoError(t, fs.Parse(want.flagArgs()))

	assert.Equal(t, want.Width, got.Width)
	assert.Equal(t, want.Height, got.Height)
	assert.Equal(t, want.SlotCount, got.SlotCount)
}

func TestImportModeString(t *testing.T) {
	assert.Equal(t, "memfd", ImportHostPointer.String())
	assert.Equal(t, "udmabuf", ImportDMABuf.String())
}
