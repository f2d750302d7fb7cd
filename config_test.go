package vtex

import (
	"errors"
	"testing"

	"github.com/gogpu/vtex/gpucore"
)

func TestConfigDefaults(t *testing.T) {
	// The cache must be a multiple of the padded page size, which with
	// defaults is 136.
	cfg := Config{PhysicalCacheWidth: 136 * 8, PhysicalCacheHeight: 136 * 8}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.PageSize != DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", DefaultPageSize, cfg.PageSize)
	}
	if cfg.FeedbackWidth != DefaultFeedbackWidth || cfg.FeedbackHeight != DefaultFeedbackHeight {
		t.Errorf("expected default feedback %dx%d, got %dx%d",
			DefaultFeedbackWidth, DefaultFeedbackHeight, cfg.FeedbackWidth, cfg.FeedbackHeight)
	}
	if cfg.Format != gpucore.TextureFormatRGBA8Unorm {
		t.Errorf("expected RGBA8 default format, got %v", cfg.Format)
	}
	if cfg.PaddedPageSize() != 136 {
		t.Errorf("expected padded page size 136, got %d", cfg.PaddedPageSize())
	}
	if cfg.PageDataSize() != 136*136*4 {
		t.Errorf("expected page data size %d, got %d", 136*136*4, cfg.PageDataSize())
	}
	if cfg.PhysicalPagesX() != 8 || cfg.PhysicalPagesY() != 8 {
		t.Errorf("expected 8x8 slots, got %dx%d", cfg.PhysicalPagesX(), cfg.PhysicalPagesY())
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{
			name: "cache too small for one slot",
			cfg:  Config{PageSize: 128, PagePadding: 4, PhysicalCacheWidth: 100, PhysicalCacheHeight: 100},
			want: ErrZeroCapacity,
		},
		{
			name: "cache not a slot multiple",
			cfg:  Config{PageSize: 128, PagePadding: 4, PhysicalCacheWidth: 1000, PhysicalCacheHeight: 1000},
			want: ErrInvalidConfig,
		},
		{
			name: "negative padding",
			cfg:  Config{PageSize: 128, PagePadding: -1, PhysicalCacheWidth: 1024, PhysicalCacheHeight: 1024},
			want: ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigNoPadding(t *testing.T) {
	cfg := Config{PageSize: 128, PhysicalCacheWidth: 1024, PhysicalCacheHeight: 512}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.PaddedPageSize() != 128 {
		t.Errorf("expected padded size 128 with zero padding, got %d", cfg.PaddedPageSize())
	}
	if cfg.PhysicalPagesX() != 8 || cfg.PhysicalPagesY() != 4 {
		t.Errorf("expected 8x4 slots, got %dx%d", cfg.PhysicalPagesX(), cfg.PhysicalPagesY())
	}
}

func TestConfigAccessorsOnReturnedValue(t *testing.T) {
	// Accessors must work on a Config returned by value, the way
	// Engine.Config() hands it out.
	mk := func() Config {
		cfg := Config{PhysicalCacheWidth: 136 * 8, PhysicalCacheHeight: 136 * 4}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		return cfg
	}
	if mk().PaddedPageSize() != 136 {
		t.Errorf("expected padded page size 136, got %d", mk().PaddedPageSize())
	}
	if mk().PageDataSize() != 136*136*4 {
		t.Errorf("expected page data size %d, got %d", 136*136*4, mk().PageDataSize())
	}
	if mk().PhysicalPagesX() != 8 || mk().PhysicalPagesY() != 4 {
		t.Errorf("expected 8x4 slots, got %dx%d", mk().PhysicalPagesX(), mk().PhysicalPagesY())
	}
}

func TestTextureConfigValidate(t *testing.T) {
	engine := Config{PageSize: 128, PhysicalCacheWidth: 1024, PhysicalCacheHeight: 1024}
	if err := engine.Validate(); err != nil {
		t.Fatalf("engine config invalid: %v", err)
	}

	tc := TextureConfig{VirtualWidth: 1024, VirtualHeight: 1024}
	if err := tc.validate(&engine); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	// 1024/128 = 8 pages; halving stays page-aligned until 128 = 1 page.
	if tc.MaxMipLevels != 4 {
		t.Errorf("expected derived mip chain of 4, got %d", tc.MaxMipLevels)
	}
	if tc.WorldSizeX != 1024 || tc.WorldSizeY != 1024 {
		t.Errorf("expected world size to default to virtual size, got %fx%f",
			tc.WorldSizeX, tc.WorldSizeY)
	}
	if tc.PagesAcross(128, 0) != 8 || tc.PagesAcross(128, 3) != 1 {
		t.Errorf("unexpected page grid: mip0=%d mip3=%d",
			tc.PagesAcross(128, 0), tc.PagesAcross(128, 3))
	}
}

func TestTextureConfigValidateErrors(t *testing.T) {
	engine := Config{PageSize: 128, PhysicalCacheWidth: 1024, PhysicalCacheHeight: 1024}
	if err := engine.Validate(); err != nil {
		t.Fatalf("engine config invalid: %v", err)
	}

	tests := []struct {
		name string
		tc   TextureConfig
	}{
		{"zero size", TextureConfig{}},
		{"not page aligned", TextureConfig{VirtualWidth: 1000, VirtualHeight: 1024}},
		{"mip chain breaks alignment", TextureConfig{VirtualWidth: 384, VirtualHeight: 384, MaxMipLevels: 2}},
		{"mip chain below one page", TextureConfig{VirtualWidth: 128, VirtualHeight: 128, MaxMipLevels: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.tc.validate(&engine); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestMaxMipChain(t *testing.T) {
	tests := []struct {
		width, height, pageSize int
		want                    int
	}{
		{1024, 1024, 128, 4}, // 8,4,2,1 pages
		{128, 128, 128, 1},
		{1024, 512, 128, 3}, // height hits one page first
		{384, 384, 128, 1},  // 192 is not a multiple of 128
	}
	for _, tt := range tests {
		got := maxMipChain(tt.width, tt.height, tt.pageSize)
		if got != tt.want {
			t.Errorf("maxMipChain(%d,%d,%d): expected %d, got %d",
				tt.width, tt.height, tt.pageSize, tt.want, got)
		}
	}
}
