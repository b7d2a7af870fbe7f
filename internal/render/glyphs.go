package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece glyphs are generated SVG documents rasterized on demand. Geometric
// shapes rather than staunton art keeps the renderer asset-free.
const glyphTemplate = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45"><path d="%s" fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round"/></svg>`

var glyphPaths = map[nchess.PieceType]string{
	nchess.Pawn:   "M22.5 8 a5.5 5.5 0 1 1 -0.01 0 Z M19 20 L26 20 L29.5 36 L15.5 36 Z",
	nchess.Rook:   "M14 11 h4 v4 h3 v-4 h3 v4 h3 v-4 h4 v8 h-3 l2 15 h-15 l2 -15 h-3 Z M12 36 h21 v4 h-21 Z",
	nchess.Knight: "M15 36 L30 36 L30 24 C30 13 24 9 16 11 L20 16 L13 23 L18 25 C16 29 15 32 15 36 Z",
	nchess.Bishop: "M22.5 7 a3 3 0 1 1 -0.01 0 Z M17 33 C15 25 19 17 22.5 13 C26 17 30 25 28 33 Z M15 35 h15 v4 h-15 Z",
	nchess.Queen:  "M12 33 L33 33 L35 16 L28 25 L22.5 11 L17 25 L10 16 Z M12 35 h21 v4 h-21 Z",
	nchess.King:   "M21 6 h3 v4 h4 v3 h-4 v4 h-3 v-4 h-4 v-3 h4 Z M15 33 C13 25 17 19 22.5 18 C28 19 32 25 30 33 Z M13 35 h19 v4 h-19 Z",
}

type glyphStyle struct {
	fill   string
	stroke string
}

var glyphStyles = map[nchess.Color]glyphStyle{
	nchess.White: {fill: "#f5f3ef", stroke: "#2a2a2a"},
	nchess.Black: {fill: "#2e2b29", stroke: "#0a0a0a"},
}

type glyphKey struct {
	piece nchess.Piece
	size  int
}

var (
	glyphCache   = map[glyphKey]image.Image{}
	glyphCacheMu sync.RWMutex
)

func pieceGlyph(piece nchess.Piece, size int) (image.Image, error) {
	key := glyphKey{piece: piece, size: size}

	glyphCacheMu.RLock()
	if img, ok := glyphCache[key]; ok {
		glyphCacheMu.RUnlock()
		return img, nil
	}
	glyphCacheMu.RUnlock()

	path, ok := glyphPaths[piece.Type()]
	if !ok {
		return nil, fmt.Errorf("no glyph for piece type %v", piece.Type())
	}
	style := glyphStyles[piece.Color()]
	doc := fmt.Sprintf(glyphTemplate, path, style.fill, style.stroke)

	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(doc)))
	if err != nil {
		return nil, fmt.Errorf("parse glyph svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	glyphCacheMu.Lock()
	glyphCache[key] = img
	glyphCacheMu.Unlock()

	return img, nil
}
