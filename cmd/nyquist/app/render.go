package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 120
	markerRadius   = 3

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 90
	defaultBottomBorder = 70
	defaultRightBorder  = 30

	defaultWidth  = 900
	defaultHeight = 700
)

var (
	gridColor  = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	traceColor = color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xff}

	// markers run from highFreqColor at the highest frequency to
	// lowFreqColor at the lowest, on a logarithmic scale
	highFreqColor = color.RGBA{R: 0x1f, G: 0x4e, B: 0xd8, A: 0xff}
	lowFreqColor  = color.RGBA{R: 0xd8, G: 0x2f, B: 0x1f, A: 0xff}
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int
	Left   int // Space for the -X scale
	Bottom int // Space for the R scale and the information bar
	Right  int
}

// RenderConfig holds the plot options. Zero values select defaults.
type RenderConfig struct {
	Width, Height int // Plot area in pixels
	FontSize      float64
	BorderConfig  BorderConfig
}

// Renderer draws Nyquist plots
type Renderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewRenderer creates a renderer with the given configuration
func NewRenderer(config RenderConfig) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}
	if config.Width < pixelsPerLabel || config.Height < pixelsPerLabel {
		return nil, fmt.Errorf("plot area %dx%d is too small", config.Width, config.Height)
	}

	parsed, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Renderer{config: config, font: parsed}, nil
}

// Render plots -X against R for every point of the series.
func (r *Renderer) Render(s *Series) (*image.RGBA, error) {
	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width+b.Left+b.Right, r.config.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height)
	p := plot{area: area}
	p.x, p.y = Equalize(
		NewAxis(s.RMin, s.RMax, r.config.Width/pixelsPerLabel),
		NewAxis(s.NegXMin, s.NegXMax, r.config.Height/pixelsPerLabel),
		r.config.Width, r.config.Height)

	ann := newAnnotator(r.font, r.config.FontSize)
	defer ann.Close()

	ann.context.SetClip(img.Bounds())
	ann.context.SetDst(img)

	p.drawGrid(img)
	if err := ann.drawScales(img, &p); err != nil {
		return nil, fmt.Errorf("drawing scales: %w", err)
	}
	if err := ann.drawInfoBar(img, s, b.Left); err != nil {
		return nil, fmt.Errorf("drawing info bar: %w", err)
	}
	p.drawSeries(img, s)

	return img, nil
}

type plot struct {
	area image.Rectangle
	x, y Axis
}

// point converts an impedance into image coordinates.
func (p *plot) point(rOhm, negXOhm float64) image.Point {
	return image.Pt(
		p.area.Min.X+p.x.Pixel(rOhm, p.area.Dx()),
		p.area.Max.Y-p.y.Pixel(negXOhm, p.area.Dy()),
	)
}

func (p *plot) drawGrid(img *image.RGBA) {
	for _, v := range p.x.Ticks() {
		x := p.point(v, 0).X
		drawLine(img, image.Pt(x, p.area.Min.Y), image.Pt(x, p.area.Max.Y), gridColor)
	}
	for _, v := range p.y.Ticks() {
		y := p.point(0, v).Y
		drawLine(img, image.Pt(p.area.Min.X, y), image.Pt(p.area.Max.X, y), gridColor)
	}

	// frame
	drawLine(img, p.area.Min, image.Pt(p.area.Max.X, p.area.Min.Y), color.Black)
	drawLine(img, image.Pt(p.area.Min.X, p.area.Max.Y), p.area.Max, color.Black)
	drawLine(img, p.area.Min, image.Pt(p.area.Min.X, p.area.Max.Y), color.Black)
	drawLine(img, image.Pt(p.area.Max.X, p.area.Min.Y), p.area.Max, color.Black)

	// the real axis, when visible
	if p.y.Min < 0 && p.y.Max > 0 {
		y := p.point(0, 0).Y
		drawLine(img, image.Pt(p.area.Min.X, y), image.Pt(p.area.Max.X, y), color.Black)
	}
}

func (p *plot) drawSeries(img *image.RGBA, s *Series) {
	for i := 1; i < len(s.Points); i++ {
		a, b := s.Points[i-1], s.Points[i]
		drawLine(img, p.point(a.ROhm, -a.XOhm), p.point(b.ROhm, -b.XOhm), traceColor)
	}
	for _, pt := range s.Points {
		c := frequencyColor(pt.FrequencyHz, s.FrequencyMin, s.FrequencyMax)
		fillCircle(img, p.point(pt.ROhm, -pt.XOhm), markerRadius, c)
	}
}

// frequencyColor interpolates between the marker colours by log frequency.
func frequencyColor(hz, lo, hi float64) color.Color {
	t := 0.0
	if hi > lo && lo > 0 {
		t = (math.Log10(hz) - math.Log10(lo)) / (math.Log10(hi) - math.Log10(lo))
	}
	t = min(max(t, 0), 1)

	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return color.RGBA{
		R: lerp(lowFreqColor.R, highFreqColor.R),
		G: lerp(lowFreqColor.G, highFreqColor.G),
		B: lerp(lowFreqColor.B, highFreqColor.B),
		A: 0xff,
	}
}

// drawLine draws a one pixel wide line using Bresenham's algorithm.
func drawLine(img *image.RGBA, a, b image.Point, c color.Color) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	e := dx + dy
	for {
		img.Set(a.X, a.Y, c)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func fillCircle(img *image.RGBA, center image.Point, radius int, c color.Color) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				img.Set(center.X+x, center.Y+y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
}

func newAnnotator(f *truetype.Font, size float64) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(f, &truetype.Options{
			Size:    size,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) fontHeight() int {
	m := a.fontFace.Metrics()
	return (m.Ascent + m.Descent).Round()
}

func (a *annotator) drawScales(img *image.RGBA, p *plot) error {
	h := a.fontHeight()

	for _, v := range p.x.Ticks() {
		x := p.point(v, 0).X
		for y := p.area.Max.Y; y < p.area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatOhm(v)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, p.area.Max.Y+tickMarkLength+h)); err != nil {
			return fmt.Errorf("drawing R label: %w", err)
		}
	}

	for _, v := range p.y.Ticks() {
		y := p.point(0, v).Y
		for x := p.area.Min.X - tickMarkLength; x < p.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatOhm(v)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(p.area.Min.X-tickMarkLength-3-width, y+h/2-a.fontFace.Metrics().Descent.Round())
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing -X label: %w", err)
		}
	}

	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, s *Series, left int) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s / %s / SoC %s", s.BatteryID, s.TestID, s.SoC))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Freq: %s - %s", formatHz(s.FrequencyMin), formatHz(s.FrequencyMax)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%d points; x: R, y: -X", len(s.Points)))

	m := a.fontFace.Metrics()
	pt := freetype.Pt(left, img.Bounds().Max.Y-m.Descent.Round()-a.fontHeight()/2)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

func formatOhm(v float64) string {
	value, prefix := humanize.ComputeSI(v)
	return fmt.Sprintf("%.3g %sΩ", value, prefix)
}

func formatHz(v float64) string {
	value, prefix := humanize.ComputeSI(v)
	return fmt.Sprintf("%.3g %sHz", value, prefix)
}
