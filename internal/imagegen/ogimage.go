package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OGImageData contains the dynamic data for the preview card.
type OGImageData struct {
	Title      string
	Localities int
	Start      time.Time
	End        time.Time
	Metrics    []string // labels of the charted metrics
}

// OGImageCache keeps generated cards for a short period, keyed by the
// selection that produced them.
type OGImageCache struct {
	mu       sync.RWMutex
	entries  map[string]ogEntry
	cacheTTL time.Duration
	maxItems int
}

type ogEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewOGImageCache creates a cache with the given TTL holding at most
// maxItems cards.
func NewOGImageCache(ttl time.Duration, maxItems int) *OGImageCache {
	return &OGImageCache{
		entries:  make(map[string]ogEntry),
		cacheTTL: ttl,
		maxItems: maxItems,
	}
}

// Get returns the cached card if still valid.
func (c *OGImageCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// Set stores a card. When full, expired entries are dropped first and
// then the whole cache is reset.
func (c *OGImageCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxItems {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxItems {
			clear(c.entries)
		}
	}
	c.entries[key] = ogEntry{data: data, expiresAt: time.Now().Add(c.cacheTTL)}
}

// OGWidth and OGHeight are the standard Open Graph image dimensions.
const (
	OGWidth  = 1200
	OGHeight = 630
)

// GenerateOGImage draws the preview card: a dark gradient with the title,
// the selection summary and the charted metrics.
func GenerateOGImage(data OGImageData) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, OGWidth, OGHeight))

	for y := 0; y < OGHeight; y++ {
		progress := float64(y) / float64(OGHeight)
		r := uint8(20 + progress*10)
		g := uint8(30 + progress*15)
		b := uint8(60 + progress*30)
		for x := 0; x < OGWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}

	drawTextOverlay(img, data)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode OG image: %w", err)
	}
	return buf.Bytes(), nil
}

func drawTextOverlay(img *image.RGBA, data OGImageData) {
	white := color.RGBA{255, 255, 255, 255}
	lightGray := color.RGBA{200, 200, 210, 255}

	title := data.Title
	if title == "" {
		title = "Mobility dashboard"
	}
	drawTextScaled(img, title, 60, 90, 6, white)

	noun := "localities"
	if data.Localities == 1 {
		noun = "locality"
	}
	drawTextScaled(img, fmt.Sprintf("%d %s", data.Localities, noun), 60, 260, 4, lightGray)

	if !data.Start.IsZero() && !data.End.IsZero() {
		span := data.Start.Format("2 Jan 2006") + " - " + data.End.Format("2 Jan 2006")
		drawTextScaled(img, span, 60, 340, 4, lightGray)
	}

	for i, m := range data.Metrics {
		if i == 3 {
			break
		}
		drawTextScaled(img, m, 60, 440+i*50, 3, lightGray)
	}
}

// drawTextScaled renders text with the fixed 7x13 face and enlarges it by
// an integer factor with nearest-neighbour sampling. (x, y) is the top
// left of the scaled text box.
func drawTextScaled(dst *image.RGBA, text string, x, y, scale int, col color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Ceil()
	h := face.Height
	if w == 0 {
		return
	}

	src := image.NewAlpha(image.Rect(0, 0, w, h))
	d.Dst = src
	d.Src = image.Opaque
	d.Dot = fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)}
	d.DrawString(text)

	cr, cg, cb, _ := col.RGBA()
	bounds := dst.Bounds()
	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			a := src.AlphaAt(sx, sy).A
			if a == 0 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					px, py := x+sx*scale+dx, y+sy*scale+dy
					if !image.Pt(px, py).In(bounds) {
						continue
					}
					bg := dst.RGBAAt(px, py)
					dst.SetRGBA(px, py, blend(bg, uint8(cr>>8), uint8(cg>>8), uint8(cb>>8), a))
				}
			}
		}
	}
}

func blend(bg color.RGBA, r, g, b, a uint8) color.RGBA {
	alpha := float64(a) / 255
	mix := func(fg, bk uint8) uint8 {
		return uint8(float64(fg)*alpha + float64(bk)*(1-alpha))
	}
	return color.RGBA{mix(r, bg.R), mix(g, bg.G), mix(b, bg.B), 255}
}
