package wiki2html

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"
	"unicode"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// ---- Themes ----

// Theme holds the colours of a preview image.
type Theme struct {
	Background color.Color
	Text       color.Color
	// Code is the background of preformatted and highlighted blocks.
	Code    color.Color
	Rule    color.Color
	Link    color.Color
	Warning color.Color
}

var (
	LightTheme = Theme{
		Background: color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
		Text:       color.RGBA{0x20, 0x21, 0x22, 0xFF},
		Code:       color.RGBA{0xF8, 0xF9, 0xFA, 0xFF},
		Rule:       color.RGBA{0xA2, 0xA9, 0xB1, 0xFF},
		Link:       color.RGBA{0x33, 0x66, 0xCC, 0xFF},
		Warning:    color.RGBA{0xD3, 0x32, 0x32, 0xFF},
	}
	DarkTheme = Theme{
		Background: color.RGBA{0x12, 0x12, 0x14, 0xFF},
		Text:       color.RGBA{0xEA, 0xEC, 0xF0, 0xFF},
		Code:       color.RGBA{0x1E, 0x1E, 0x22, 0xFF},
		Rule:       color.RGBA{0x44, 0x44, 0x48, 0xFF},
		Link:       color.RGBA{0x88, 0xA3, 0xE8, 0xFF},
		Warning:    color.RGBA{0xF5, 0x4D, 0x4D, 0xFF},
	}
)

// ThemeByName returns a built-in theme: "light" (also the empty name) or
// "dark".
func ThemeByName(name string) (Theme, error) {
	switch strings.ToLower(name) {
	case "", "light":
		return LightTheme, nil
	case "dark":
		return DarkTheme, nil
	}
	return Theme{}, fmt.Errorf("wiki2html: unknown preview theme %q", name)
}

// ---- Fonts ----

const previewDPI = 96

// Face is a parsed TrueType font with a face built at its base size.
type Face struct {
	Font *truetype.Font
	face font.Face
	size float64
}

func parseFace(ttf []byte, size float64) (*Face, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: previewDPI, Hinting: font.HintingFull})
	return &Face{Font: f, face: face, size: size}, nil
}

// width measures s drawn at size. Other sizes than the base size are
// scaled linearly.
func (f *Face) width(size float64, s string) float64 {
	if f == nil || s == "" {
		return 0
	}
	w := float64(font.MeasureString(f.face, s).Round())
	if size > 0 && f.size > 0 && size != f.size {
		w *= size / f.size
	}
	return w
}

// Fonts is the set of faces a preview draws with.
type Fonts struct {
	Regular    *Face
	Bold       *Face
	Italic     *Face
	BoldItalic *Face
	Mono       *Face
}

func (f Fonts) styled(bold, italic bool) *Face {
	switch {
	case bold && italic:
		return f.BoldItalic
	case bold:
		return f.Bold
	case italic:
		return f.Italic
	}
	return f.Regular
}

// fill replaces the missing faces of f with those of fallback.
func (f *Fonts) fill(fallback Fonts) {
	for _, slot := range []struct{ dst, src **Face }{
		{&f.Regular, &fallback.Regular},
		{&f.Bold, &fallback.Bold},
		{&f.Italic, &fallback.Italic},
		{&f.BoldItalic, &fallback.BoldItalic},
		{&f.Mono, &fallback.Mono},
	} {
		if *slot.dst == nil {
			*slot.dst = *slot.src
		}
	}
}

func (f Fonts) complete() bool {
	return f.Regular != nil && f.Bold != nil && f.Italic != nil && f.BoldItalic != nil && f.Mono != nil
}

// FontConfig selects font files. Empty paths use the bundled Go fonts.
type FontConfig struct {
	RegularPath    string
	BoldPath       string
	ItalicPath     string
	BoldItalicPath string
	MonoPath       string
	// Size is the body text size in points. Default 16.
	Size float64
}

func LoadFonts(cfg FontConfig) (Fonts, error) {
	if cfg.Size <= 0 {
		cfg.Size = 16
	}
	var fonts Fonts
	slots := []struct {
		path    string
		builtin []byte
		dst     **Face
	}{
		{cfg.RegularPath, goregular.TTF, &fonts.Regular},
		{cfg.BoldPath, gobold.TTF, &fonts.Bold},
		{cfg.ItalicPath, goitalic.TTF, &fonts.Italic},
		{cfg.BoldItalicPath, gobolditalic.TTF, &fonts.BoldItalic},
		{cfg.MonoPath, gomono.TTF, &fonts.Mono},
	}
	for _, slot := range slots {
		ttf := slot.builtin
		if slot.path != "" {
			b, err := os.ReadFile(slot.path)
			if err != nil {
				return Fonts{}, fmt.Errorf("wiki2html: reading font: %w", err)
			}
			ttf = b
		}
		face, err := parseFace(ttf, cfg.Size)
		if err != nil {
			name := slot.path
			if name == "" {
				name = "bundled font"
			}
			return Fonts{}, fmt.Errorf("wiki2html: parsing %s: %w", name, err)
		}
		*slot.dst = face
	}
	return fonts, nil
}

// ---- Canvas ----

func lineHeight(size float64) int {
	return int(size * 1.4)
}

// canvas is a fixed-size drawing surface with a vertical cursor. Content
// flows downward from the top margin and the image is cropped to the
// cursor when the drawing is done.
type canvas struct {
	img    *image.RGBA
	ctx    *freetype.Context
	width  int
	margin int
	y      int
	theme  Theme
	fonts  Fonts
	size   float64
}

func newCanvas(width, height, margin int, theme Theme, fonts Fonts, size float64) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(theme.Background), image.Point{}, draw.Src)
	ctx := freetype.NewContext()
	ctx.SetDPI(previewDPI)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)
	return &canvas{
		img:    img,
		ctx:    ctx,
		width:  width,
		margin: margin,
		y:      margin,
		theme:  theme,
		fonts:  fonts,
		size:   size,
	}
}

func (c *canvas) use(f *Face, col color.Color, size float64) {
	c.ctx.SetFont(f.Font)
	c.ctx.SetFontSize(size)
	c.ctx.SetSrc(image.NewUniform(col))
}

func (c *canvas) fill(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

func (c *canvas) space(px int) {
	c.y += px
}

func (c *canvas) rule(left, right int) {
	y := c.y + 4
	c.fill(image.Rect(left, y, right, y+2), c.theme.Rule)
	c.y = y + 10
}

// marker draws a list marker right-aligned between left and right.
func (c *canvas) marker(text string, baseline, left, right int, size float64) {
	f := c.fonts.Regular
	c.use(f, c.theme.Text, size)
	x := max(right-int(f.width(size, text)), left)
	_, _ = c.ctx.DrawString(text, freetype.Pt(x, baseline))
}

// codeBlock draws text in the monospace face on a shaded box.
func (c *canvas) codeBlock(text string, left, right int, size float64) {
	const pad = 10
	mono := c.fonts.Mono
	lines := wrapCode(mono, size, text, float64(right-left-2*pad))
	step := lineHeight(size)
	top := c.y
	height := len(lines)*step + 2*pad + 6
	c.fill(image.Rect(left, top, right, top+height), c.theme.Code)

	c.use(mono, c.theme.Text, size)
	baseline := top + pad + int(size)
	for _, ln := range lines {
		_, _ = c.ctx.DrawString(ln, freetype.Pt(left+pad, baseline))
		baseline += step
	}
	c.y = top + height + 6
}

// span is inline text in a single style. A span with newline set ends the
// current line instead of carrying text.
type span struct {
	text      string
	face      *Face
	size      float64
	color     color.Color
	underline bool
	newline   bool
}

// flow lays spans out between left and right, wrapping at spaces, and
// returns the baseline of each line drawn.
func (c *canvas) flow(spans []span, left, right int) []int {
	maxWidth := float64(right - left)
	var (
		line      []span
		width     float64
		tallest   float64
		baselines []int
	)
	emit := func(blank bool) {
		if len(line) == 0 {
			if blank {
				c.y += lineHeight(max(tallest, c.size))
			}
			return
		}
		size := tallest
		if size == 0 {
			size = c.size
		}
		baseline := c.y + int(size)
		x := left
		for _, s := range line {
			c.use(s.face, s.color, s.size)
			_, _ = c.ctx.DrawString(s.text, freetype.Pt(x, baseline))
			w := int(s.face.width(s.size, s.text))
			if s.underline && w > 0 {
				y := baseline + max(int(s.size*0.12), 1)
				c.fill(image.Rect(x, y, x+w, y+1), s.color)
			}
			x += w
		}
		baselines = append(baselines, baseline)
		c.y += lineHeight(size)
		line, width, tallest = line[:0], 0, 0
	}

	for _, s := range spans {
		if s.newline {
			emit(true)
			continue
		}
		if s.face == nil {
			s.face = c.fonts.Regular
		}
		for _, word := range splitWords(s.text) {
			w := s.face.width(s.size, word)
			if unicode.IsSpace([]rune(word)[0]) {
				if len(line) == 0 {
					continue
				}
			} else {
				if width+w > maxWidth && len(line) > 0 {
					emit(false)
				}
				tallest = max(tallest, s.size)
			}
			piece := s
			piece.text = word
			line = append(line, piece)
			width += w
		}
	}
	emit(false)
	return baselines
}

// crop returns the top height pixels of the drawing.
func (c *canvas) crop(height int) *image.RGBA {
	height = min(height, c.img.Bounds().Dy())
	img := image.NewRGBA(image.Rect(0, 0, c.width, height))
	draw.Draw(img, img.Bounds(), c.img, image.Point{}, draw.Src)
	return img
}

// ---- Text helpers ----

// splitWords splits s into alternating runs of spaces and non-spaces.
func splitWords(s string) []string {
	var words []string
	start := 0
	prevSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if i > 0 && space != prevSpace {
			words = append(words, s[start:i])
			start = i
		}
		prevSpace = space
	}
	if start < len(s) {
		words = append(words, s[start:])
	}
	return words
}

// wrapCode breaks each line of text to fit maxWidth. Leading and inner
// runs of spaces are kept; words wider than a line are split by rune.
func wrapCode(f *Face, size float64, text string, maxWidth float64) []string {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if maxWidth <= 0 || f.width(size, ln) <= maxWidth {
			lines = append(lines, ln)
			continue
		}
		var cur strings.Builder
		var w float64
		for _, word := range splitWords(ln) {
			ww := f.width(size, word)
			if ww > maxWidth {
				if cur.Len() > 0 {
					lines = append(lines, cur.String())
					cur.Reset()
					w = 0
				}
				lines = append(lines, breakWord(f, size, word, maxWidth)...)
				continue
			}
			if w+ww > maxWidth && cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
				w = 0
			}
			cur.WriteString(word)
			w += ww
		}
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
		}
	}
	return lines
}

func breakWord(f *Face, size float64, word string, maxWidth float64) []string {
	var parts []string
	var cur strings.Builder
	var w float64
	for _, r := range word {
		rw := f.width(size, string(r))
		if w+rw > maxWidth && cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			w = 0
		}
		cur.WriteRune(r)
		w += rw
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// scaleToWidth shrinks img to width, keeping its aspect ratio. Images
// already narrow enough are returned unchanged.
func scaleToWidth(img *image.RGBA, width int) *image.RGBA {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		return img
	}
	height := max(int(float64(b.Dy())*float64(width)/float64(b.Dx())), 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

var errIncompleteFonts = errors.New("wiki2html: incomplete preview font set")
