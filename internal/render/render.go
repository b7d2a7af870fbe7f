// Package render draws a game position as a PNG for the board endpoint.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type MoveHighlight struct {
	From nchess.Square
	To   nchess.Square
}

type Options struct {
	Highlight   *MoveHighlight
	CheckSquare string // algebraic square of a checked king, empty for none
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error)
}

const (
	squareSize = 64
	margin     = 24
	boardSize  = squareSize * 8
)

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	backgroundFill = color.RGBA{38, 36, 33, 255}
	highlightFill  = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	checkFill      = color.NRGBA{R: 231, G: 76, B: 60, A: 150}
	coordinateText = color.NRGBA{R: 214, G: 204, B: 186, A: 255}
)

type pngRenderer struct{}

func NewRenderer() BoardRenderer {
	return &pngRenderer{}
}

func (r *pngRenderer) RenderPNG(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	total := boardSize + margin*2
	origin := image.Point{X: margin, Y: margin}
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundFill), image.Point{}, imagedraw.Src)

	drawSquares(img, origin)
	drawOverlays(img, origin, opts)
	if err := drawPieces(img, board, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	rankOrder = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	fileOrder = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

func drawSquares(img *image.RGBA, origin image.Point) {
	for row, rank := range rankOrder {
		for col, file := range fileOrder {
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			clr := squareColor(nchess.NewSquare(file, rank))
			imagedraw.Draw(img, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawOverlays(img *image.RGBA, origin image.Point, opts Options) {
	if opts.Highlight != nil {
		fillSquare(img, origin, opts.Highlight.From, highlightFill)
		fillSquare(img, origin, opts.Highlight.To, highlightFill)
	}
	if opts.CheckSquare != "" {
		if sq, ok := parseSquare(opts.CheckSquare); ok {
			fillSquare(img, origin, sq, checkFill)
		}
	}
}

func drawPieces(img *image.RGBA, board *nchess.Board, origin image.Point) error {
	squares := board.SquareMap()
	for row, rank := range rankOrder {
		for col, file := range fileOrder {
			piece := squares[nchess.NewSquare(file, rank)]
			if piece == nchess.NoPiece {
				continue
			}
			glyph, err := pieceGlyph(piece, squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(img, image.Rect(x, y, x+squareSize, y+squareSize), glyph, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func drawCoordinates(img *image.RGBA, origin image.Point) {
	drawer := &font.Drawer{
		Dst:  img,
		Face: basicfont.Face7x13,
		Src:  image.NewUniform(coordinateText),
	}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()

	for row, rank := range rankOrder {
		baseline := origin.Y + row*squareSize + squareSize/2 + ascent/2
		drawCentered(drawer, rank.String(), origin.X-margin/2, baseline)
	}
	for col, file := range fileOrder {
		baseline := origin.Y + boardSize + ascent + 4
		drawCentered(drawer, file.String(), origin.X+col*squareSize+squareSize/2, baseline)
	}
}

func drawCentered(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func fillSquare(img *image.RGBA, origin image.Point, sq nchess.Square, clr color.Color) {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	imagedraw.Draw(img, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 {
		return 0, false
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(file), nchess.Rank(rank)), true
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}
