// Command vtexbake converts a source image into an on-disk tile set
// for vtex.FileProvider.
//
// The input is split into padded pages at every mip level and each
// page is written as a framed, checksummed file:
//
//	vtexbake --input terrain.png --output tiles/ --codec zstd
//
// The resulting tree (tiles/vt0/mip{m}/page_{x}_{y}.bin) is read back
// at runtime with vtex.NewFileProvider.
package main

import (
	"fmt"
	"image"
	"log"
	"os"
	"runtime"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/internal/mip"
)

func main() {
	var (
		input    = flag.StringP("input", "i", "", "source image (png or jpeg)")
		output   = flag.StringP("output", "o", "tiles", "output tile set directory")
		pageSize = flag.Int("page-size", vtex.DefaultPageSize, "page edge length in pixels")
		padding  = flag.Int("padding", vtex.DefaultPagePadding, "page border padding in pixels per side")
		codec    = flag.String("codec", "zstd", "page compression: raw, lz4, or zstd")
		index    = flag.Int("index", 0, "tile set path index (vt{index}/)")
		mips     = flag.Int("mips", 0, "mip levels to bake, 0 derives the full chain")
		jobs     = flag.IntP("jobs", "j", runtime.NumCPU(), "parallel bake workers")
	)
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	c, err := parseCodec(*codec)
	if err != nil {
		log.Fatalf("vtexbake: %v", err)
	}

	start := time.Now()
	pages, err := bake(*input, *output, *pageSize, *padding, *index, *mips, *jobs, c)
	if err != nil {
		log.Fatalf("vtexbake: %v", err)
	}
	log.Printf("baked %d pages to %s in %v", pages, *output, time.Since(start).Round(time.Millisecond))
}

func parseCodec(name string) (vtex.Codec, error) {
	switch name {
	case "raw":
		return vtex.CodecRaw, nil
	case "lz4":
		return vtex.CodecLZ4, nil
	case "zstd":
		return vtex.CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

// bake loads the source, builds the mip chain, and writes every padded
// page. Pages bake in parallel across jobs workers; the first error
// cancels the remaining work.
func bake(input, output string, pageSize, padding, index, mips, jobs int, codec vtex.Codec) (int, error) {
	src, err := mip.Load(input)
	if err != nil {
		return 0, err
	}

	chain, err := mip.Generate(src, pageSize, mips)
	if err != nil {
		return 0, err
	}

	edge := pageSize + 2*padding
	// The provider resolves page paths; baking never reads through it.
	provider, err := vtex.NewFileProvider(output, index, edge*edge*4)
	if err != nil {
		return 0, err
	}
	log.Printf("source %dx%d, %d mip levels, %dpx pages (+%dpx padding)",
		src.Rect.Dx(), src.Rect.Dy(), chain.NumLevels(), pageSize, padding)

	type job struct {
		level *image.RGBA
		id    vtex.PageID
	}

	var g errgroup.Group
	g.SetLimit(jobs)

	pages := 0
	for m := 0; m < chain.NumLevels(); m++ {
		level := chain.Level(m)
		pagesX := level.Rect.Dx() / pageSize
		pagesY := level.Rect.Dy() / pageSize
		for y := 0; y < pagesY; y++ {
			for x := 0; x < pagesX; x++ {
				j := job{level: level, id: vtex.PageID{Mip: uint8(m), X: uint16(x), Y: uint16(y)}}
				pages++
				g.Go(func() error {
					data := mip.ExtractPage(j.level, int(j.id.X), int(j.id.Y), pageSize, padding)
					path := provider.PagePath(j.id)
					if err := vtex.WritePageFile(path, data, codec); err != nil {
						return fmt.Errorf("page %s: %w", j.id, err)
					}
					return nil
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return pages, nil
}
