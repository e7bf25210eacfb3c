package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
)

// DefaultThickness толщина рамки в пикселях
const DefaultThickness = 3

const (
	labelOffsetX = 5
	labelOffsetY = 20
)

// Style оформление рамки дефекта
type Style struct {
	Stroke color.RGBA
}

var (
	red    = color.RGBA{R: 0xFF, A: 0xFF}
	orange = color.RGBA{R: 0xFF, G: 0x88, A: 0xFF}
	yellow = color.RGBA{R: 0xFF, G: 0xFF, A: 0xFF}
	white  = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// DefaultStyle для трещин, выветривания и неизвестных классов
var DefaultStyle = Style{Stroke: yellow}

var styles = map[entity.DefectType]Style{
	entity.DefectPothole:           {Stroke: red},
	entity.DefectAlligatorCracking: {Stroke: orange},
}

// StyleFor возвращает оформление для типа дефекта
func StyleFor(t entity.DefectType) Style {
	if s, ok := styles[t]; ok {
		return s
	}
	return DefaultStyle
}

// Annotator рисует рамки и подписи дефектов поверх снимка.
// Не хранит состояния между вызовами и безопасен для параллельного использования.
type Annotator struct {
	Thickness int
	Face      font.Face
	MaxPixels int
}

// NewAnnotator создаёт отрисовщик с заданной толщиной рамки
func NewAnnotator(thickness int) *Annotator {
	if thickness <= 0 {
		thickness = DefaultThickness
	}
	return &Annotator{
		Thickness: thickness,
		Face:      basicfont.Face7x13,
		MaxPixels: DefaultMaxPixels,
	}
}

// Annotate декодирует снимок, рисует рамки и возвращает PNG того же размера.
func (a *Annotator) Annotate(imageData []byte, defects []entity.Detection) ([]byte, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image")
	}

	maxPixels := a.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if err := checkDimensions(imageData, maxPixels); err != nil {
		return nil, err
	}

	src, err := decodeImage(imageData)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	sb := src.Bounds()
	if sb.Empty() {
		return nil, errors.New("image has no pixels")
	}
	canvas := image.NewRGBA(image.Rect(0, 0, sb.Dx(), sb.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, sb.Min, draw.Src)

	for _, d := range defects {
		x, y, w, h := d.Bounds()
		drawBox(canvas, x, y, w, h, a.Thickness, StyleFor(d.Type()).Stroke)
		a.drawLabel(canvas, x+labelOffsetX, max(0, y-labelOffsetY), d.Label())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBox рисует рамку слоями внутрь: на слое i верхняя и нижняя линии
// проходят по строкам y+i и y+h-i, левая и правая по столбцам x+i и x+w-i.
// Каждая точка обрезается по границам холста отдельно.
func drawBox(canvas *image.RGBA, x, y, w, h, thickness int, c color.RGBA) {
	b := canvas.Bounds()
	x0, x1 := max(x, b.Min.X), min(x+w, b.Max.X)
	y0, y1 := max(y, b.Min.Y), min(y+h, b.Max.Y)

	for i := 0; i < thickness; i++ {
		for _, row := range [2]int{y + i, y + h - i} {
			if row < b.Min.Y || row >= b.Max.Y {
				continue
			}
			for px := x0; px < x1; px++ {
				canvas.SetRGBA(px, row, c)
			}
		}
		for _, col := range [2]int{x + i, x + w - i} {
			if col < b.Min.X || col >= b.Max.X {
				continue
			}
			for py := y0; py < y1; py++ {
				canvas.SetRGBA(col, py, c)
			}
		}
	}
}

// drawLabel пишет подпись, top задаёт верхнюю границу строки текста.
func (a *Annotator) drawLabel(canvas *image.RGBA, left, top int, text string) {
	if a.Face == nil {
		return
	}
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(white),
		Face: a.Face,
		Dot:  fixed.Point26_6{X: fixed.I(left), Y: fixed.I(top) + a.Face.Metrics().Ascent},
	}
	d.DrawString(text)
}

// Проверка реализации интерфейса
var _ port.ImageAnnotator = (*Annotator)(nil)
