package tile

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultQuality is the JPEG quality used for tiles when none is configured.
const DefaultQuality = 75

// Size is a fixed output size in pixels.
type Size struct {
	Width  int
	Height int
}

// String returns the size in WxH form.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Validate reports whether both dimensions are positive.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid size %s: width and height must be positive", s)
	}
	return nil
}

// ParseSize parses strings like "10x10", "600X480" or "4×4".
func ParseSize(value string) (Size, error) {
	v := strings.TrimSpace(value)
	v = strings.ReplaceAll(v, "×", "x")
	v = strings.ReplaceAll(v, "X", "x")

	parts := strings.Split(v, "x")
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("invalid size %q: expected WIDTHxHEIGHT", value)
	}

	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Size{}, fmt.Errorf("invalid width in %q: %w", value, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Size{}, fmt.Errorf("invalid height in %q: %w", value, err)
	}

	size := Size{Width: w, Height: h}
	if err := size.Validate(); err != nil {
		return Size{}, err
	}
	return size, nil
}

var filters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"hermite":    imaging.Hermite,
	"mitchell":   imaging.MitchellNetravali,
	"catmullrom": imaging.CatmullRom,
	"bspline":    imaging.BSpline,
	"gaussian":   imaging.Gaussian,
	"lanczos":    imaging.Lanczos,
}

// DefaultFilter is the resampling filter name used when none is configured (bicubic).
const DefaultFilter = "catmullrom"

// ParseFilter returns the imaging resample filter registered under name.
// An empty name selects DefaultFilter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = DefaultFilter
	}
	f, ok := filters[n]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q (valid: %s)", name, strings.Join(FilterNames(), ", "))
	}
	return f, nil
}

// FilterNames returns the accepted filter names in alphabetical order.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for n := range filters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultExtensions lists the source extensions accepted by a compression run.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// NormalizeExtensions lowercases exts and gives each a leading dot. Blank
// entries and duplicates are dropped; order is kept.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	normalized := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if seen[ext] {
			continue
		}
		seen[ext] = true
		normalized = append(normalized, ext)
	}
	return normalized
}

// Extensions is a set of accepted source file extensions.
type Extensions map[string]struct{}

// NewExtensions builds the set from exts after normalizing them.
func NewExtensions(exts []string) Extensions {
	set := make(Extensions, len(exts))
	for _, ext := range NormalizeExtensions(exts) {
		set[ext] = struct{}{}
	}
	return set
}

// Match reports whether the extension of name is in the set, ignoring case.
func (e Extensions) Match(name string) bool {
	_, ok := e[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ToRGB returns a copy of img with alpha and palette information dropped.
// Color channels are kept as stored; only the alpha channel is forced opaque.
func ToRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Fit converts img to RGB and resizes it to exactly size.
func Fit(img image.Image, size Size, filter imaging.ResampleFilter) *image.NRGBA {
	return imaging.Resize(ToRGB(img), size.Width, size.Height, filter)
}

// SaveJPEG encodes img as JPEG and writes it to path. The data is written to a
// temporary file next to path first and renamed into place, so path is never
// observed half-written. It returns the number of bytes written.
func SaveJPEG(img image.Image, path string, quality int) (int64, error) {
	if quality <= 0 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return 0, fmt.Errorf("encode error: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write tmp file error: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("rename error: %w", err)
	}
	return int64(buf.Len()), nil
}
