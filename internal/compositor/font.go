package compositor

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/golang/freetype/truetype"
	chart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/image/font"
)

// CJKSample holds characters the dashboard always draws: the average series
// title, the yen sign and the news brackets.
const CJKSample = "国内平均円【】｜"

// cjkFontPaths are TrueType fonts with Japanese glyphs shipped by common
// distribution packages (fonts-ipafont-gothic, fonts-takao-gothic,
// fonts-droid-fallback). Collections (.ttc) and CFF fonts are not readable.
var cjkFontPaths = []string{
	"/usr/share/fonts/opentype/ipafont-gothic/ipag.ttf",
	"/usr/share/fonts/truetype/fonts-japanese-gothic.ttf",
	"/usr/share/fonts/truetype/takao-gothic/TakaoGothic.ttf",
	"/usr/share/fonts/ipa-gothic/ipag.ttf",
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/google-droid-sans-fonts/DroidSansFallbackFull.ttf",
}

// LoadFont parses the TrueType file at path. With an empty path it uses the
// first readable system CJK font, then go-chart's bundled Roboto, which has
// no Japanese glyphs; check the result with MissingGlyphs.
func LoadFont(path string) (*truetype.Font, error) {
	if path != "" {
		return parseFontFile(path)
	}
	for _, candidate := range cjkFontPaths {
		if f, err := parseFontFile(candidate); err == nil {
			return f, nil
		}
	}
	f, err := chart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("load default font: %w", err)
	}
	return f, nil
}

// MissingGlyphs lists the runes of s that f cannot draw.
func MissingGlyphs(f *truetype.Font, s string) []rune {
	var missing []rune
	for _, r := range s {
		if f.Index(r) == 0 && !slices.Contains(missing, r) {
			missing = append(missing, r)
		}
	}
	return missing
}

func parseFontFile(path string) (*truetype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return f, nil
}

// NewFace returns a face at size points. Faces cache glyphs and are not safe
// for concurrent use; create one per goroutine.
func NewFace(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
}

// Measurer returns a goroutine-safe width function backed by face.
func Measurer(face font.Face) func(string) int {
	var mu sync.Mutex
	return func(s string) int {
		mu.Lock()
		defer mu.Unlock()
		return font.MeasureString(face, s).Ceil()
	}
}
