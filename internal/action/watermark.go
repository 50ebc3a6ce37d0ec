package action

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cmllr/CameraObscura/internal/config"
	"github.com/cmllr/CameraObscura/internal/render"
)

// applyWatermark composites the configured text onto the image at path and
// persists the result as a sibling file with a _tmp suffix before its
// extension, returning the derived path. Missing configuration values and a
// missing source image are deployment errors.
func applyWatermark(block map[string]any, path string, store *config.Store) (string, error) {
	if err := config.RequireKeys(block, "x", "y", "color", "text"); err != nil {
		return "", fmt.Errorf("watermark: %w", err)
	}

	source, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("watermark source image: %w", err)
	}
	decoded, _, err := image.Decode(source)
	source.Close()
	if err != nil {
		return "", fmt.Errorf("decode watermark source: %w", err)
	}

	x, err := asInt(block["x"])
	if err != nil {
		return "", fmt.Errorf("watermark x: %w", err)
	}
	y, err := asInt(block["y"])
	if err != nil {
		return "", fmt.Errorf("watermark y: %w", err)
	}
	textColor, err := asColor(block["color"])
	if err != nil {
		return "", fmt.Errorf("watermark color: %w", err)
	}
	text, _ := block["text"].(string)
	text = render.Placeholders(text, store, time.Now())

	canvas := image.NewRGBA(decoded.Bounds())
	draw.Draw(canvas, canvas.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+basicfont.Face7x13.Ascent),
	}
	drawer.DrawString(text)

	derived := derivedPath(path)
	target, err := os.Create(derived)
	if err != nil {
		return "", fmt.Errorf("create watermarked file: %w", err)
	}
	defer target.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(target, canvas)
	default:
		err = jpeg.Encode(target, canvas, nil)
	}
	if err != nil {
		return "", fmt.Errorf("encode watermarked file: %w", err)
	}
	return derived, nil
}

// derivedPath turns dir/file.jpg into dir/file_tmp.jpg.
func derivedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_tmp" + ext
}

func asInt(value any) (int, error) {
	switch typed := value.(type) {
	case float64:
		return int(typed), nil
	case int:
		return typed, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

// asColor accepts an [r, g, b] or [r, g, b, a] list.
func asColor(value any) (color.Color, error) {
	list, ok := value.([]any)
	if !ok || len(list) < 3 {
		return nil, fmt.Errorf("expected an [r, g, b] list")
	}
	channels := make([]uint8, 4)
	channels[3] = 0xff
	for i := 0; i < len(list) && i < 4; i++ {
		channel, err := asInt(list[i])
		if err != nil {
			return nil, err
		}
		channels[i] = uint8(channel)
	}
	return color.RGBA{R: channels[0], G: channels[1], B: channels[2], A: channels[3]}, nil
}
