package vault

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	ThumbnailMaxSide = 200
	ThumbnailQuality = 80

	maxSourcePixels = 100_000_000
)

// Thumbnailer turns an encoded image into a small encoded preview.
type Thumbnailer func(data []byte) ([]byte, error)

// MakeThumbnail decodes JPEG, PNG, GIF or WebP data and returns a JPEG
// (quality 80) whose longest side is at most 200 px. Images already within
// the bound keep their size. Undecodable input yields
// common.ErrUnsupportedImage.
func MakeThumbnail(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("%w: dimensions %dx%d", common.ErrUnsupportedImage, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedImage, err)
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), ThumbnailMaxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
