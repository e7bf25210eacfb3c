//go:build gocv
// +build gocv

package vision

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// decodeImage декодирует снимок через OpenCV. Промежуточная матрица
// освобождается на любом пути выхода.
func decodeImage(imageData []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("failed to decode image")
	}
	return mat.ToImage()
}
