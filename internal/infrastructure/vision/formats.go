package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels предел размера снимка, около 40 Мп
const DefaultMaxPixels = 40_000_000

// checkDimensions читает только заголовок снимка и отклоняет изображения
// крупнее maxPixels до того, как под них будет выделена память.
func checkDimensions(imageData []byte, maxPixels int) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return fmt.Errorf("read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%s image has no pixels", format)
	}
	if cfg.Width > maxPixels/cfg.Height {
		return fmt.Errorf("%s image %dx%d exceeds %d pixels", format, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}
