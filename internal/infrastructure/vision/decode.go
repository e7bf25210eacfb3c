//go:build !gocv
// +build !gocv

package vision

import (
	"bytes"
	"image"
)

// decodeImage превращает байты снимка в image.Image средствами стандартных декодеров.
func decodeImage(imageData []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, err
	}
	return img, nil
}
