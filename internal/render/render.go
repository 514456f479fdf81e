// Package render draws a DuelMatchState with gg. It only reads state; the
// same frame can be rendered for a live match, an ipc spectator or a replay.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"

	"volley-duel/internal/game"
)

// Field extent drawn by the renderer, in world units.
const (
	FieldHeight float64 = 600
	FieldWidth          = float64(game.FieldWidth)
)

var (
	skyColor    = color.RGBA{148, 200, 240, 255}
	sandColor   = color.RGBA{236, 214, 160, 255}
	netColor    = color.RGBA{60, 60, 70, 255}
	ballColor   = color.RGBA{250, 250, 250, 255}
	markerColor = color.RGBA{220, 60, 40, 255}
	textColor   = color.RGBA{20, 25, 35, 255}
	shadowColor = color.RGBA{0, 0, 0, 60}
)

// DefaultColors are the blob colors used when a frame names none.
var DefaultColors = [2]string{"#0000ff", "#ff0000"}

// Config sets the output size and the font used for the HUD.
type Config struct {
	Width    int
	Height   int
	FontPath string // empty: search the usual system locations
}

// DefaultConfig renders the field at one pixel per world unit.
func DefaultConfig() Config {
	return Config{Width: int(FieldWidth), Height: int(FieldHeight)}
}

// Frame is everything drawn for one picture.
type Frame struct {
	State  game.DuelMatchState
	Names  [2]string
	Colors [2]string
	Paused bool
}

// Renderer turns frames into images. It is safe for concurrent use.
type Renderer struct {
	cfg    Config
	sx, sy float64

	fontOnce sync.Once
	hudFace  font.Face
	bigFace  font.Face
}

// New creates a renderer. Zero sizes fall back to DefaultConfig.
func New(cfg Config) *Renderer {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	return &Renderer{
		cfg: cfg,
		sx:  float64(cfg.Width) / FieldWidth,
		sy:  float64(cfg.Height) / FieldHeight,
	}
}

// Size returns the output dimensions.
func (r *Renderer) Size() (int, int) { return r.cfg.Width, r.cfg.Height }

// ToScreen maps a world position to pixel coordinates.
func (r *Renderer) ToScreen(v game.Vector2) (float64, float64) {
	return (float64(v.X) - float64(game.LeftPlane)) * r.sx, float64(v.Y) * r.sy
}

// loadFonts loads the HUD faces once. Without a usable TTF the fixed
// basicfont face is used for both sizes.
func (r *Renderer) loadFonts() {
	r.hudFace = basicfont.Face7x13
	r.bigFace = basicfont.Face7x13

	fontPath := r.cfg.FontPath
	if fontPath == "" {
		fontPath = getFontPath()
	}
	if fontPath == "" {
		return
	}

	fontData, err := os.ReadFile(fontPath)
	if err != nil {
		log.Printf("⚠️ Failed to read font file: %v", err)
		return
	}
	parsed, err := opentype.Parse(fontData)
	if err != nil {
		log.Printf("⚠️ Failed to parse font: %v", err)
		return
	}

	hud, err := opentype.NewFace(parsed, &opentype.FaceOptions{Size: 18, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		log.Printf("⚠️ Failed to create HUD font face: %v", err)
		return
	}
	big, err := opentype.NewFace(parsed, &opentype.FaceOptions{Size: 40, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		log.Printf("⚠️ Failed to create large font face: %v", err)
		return
	}
	r.hudFace, r.bigFace = hud, big
}

// Render draws f into a fresh image.
func (r *Renderer) Render(f Frame) image.Image {
	r.fontOnce.Do(r.loadFonts)

	dc := gg.NewContext(r.cfg.Width, r.cfg.Height)
	r.drawBackground(dc)
	r.drawNet(dc)

	s := &f.State
	for side := range s.World.Blobs {
		colors := f.Colors
		if colors[side] == "" {
			colors[side] = DefaultColors[side]
		}
		r.drawBlob(dc, s.World.Blobs[side], parseHexColor(colors[side]))
	}
	r.drawBall(dc, s.World.BallPosition, s.World.BallRotation)
	r.drawHUD(dc, f)

	return dc.Image()
}

// EncodePNG renders f and writes it as PNG.
func (r *Renderer) EncodePNG(w io.Writer, f Frame) error {
	img := r.Render(f)
	dc := gg.NewContextForImage(img)
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// SavePNG renders f to a file.
func (r *Renderer) SavePNG(path string, f Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.EncodePNG(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (r *Renderer) drawBackground(dc *gg.Context) {
	w, h := float64(r.cfg.Width), float64(r.cfg.Height)
	_, ground := r.ToScreen(game.Vector2{Y: game.GroundPlaneHeightMax})

	dc.SetColor(skyColor)
	dc.DrawRectangle(0, 0, w, ground)
	dc.Fill()

	dc.SetColor(sandColor)
	dc.DrawRectangle(0, ground, w, h-ground)
	dc.Fill()
}

func (r *Renderer) drawNet(dc *gg.Context) {
	x, top := r.ToScreen(game.Vector2{X: game.NetPositionX, Y: game.NetSphereTop})
	_, ground := r.ToScreen(game.Vector2{Y: game.GroundPlaneHeightMax})
	radius := float64(game.NetRadius) * r.sx

	dc.SetColor(netColor)
	dc.DrawRectangle(x-radius, top, 2*radius, ground-top)
	dc.Fill()
	dc.DrawCircle(x, top, radius)
	dc.Fill()
}

// foldPhase turns the animation sawtooth into the 0..1 squash amount.
func foldPhase(phase float32) float64 {
	p := float64(phase)
	turn := float64(game.BlobbyAnimationTurn)
	if p > turn {
		p = 2*turn - p
	}
	return math.Max(0, math.Min(1, p/turn))
}

func (r *Renderer) drawBlob(dc *gg.Context, b game.BlobState, c color.Color) {
	x, y := r.ToScreen(b.Position)
	squash := 1 - 0.12*foldPhase(b.AnimationPhase)

	lowerR := float64(game.BlobbyLowerRadius)
	upperR := float64(game.BlobbyUpperRadius)
	lowerY := y + float64(game.BlobbyLowerSphere)*r.sy
	upperY := y - float64(game.BlobbyUpperSphere)*r.sy*squash

	// Shadow on the ground
	_, ground := r.ToScreen(game.Vector2{Y: game.GroundPlaneHeightMax})
	dc.SetColor(shadowColor)
	dc.DrawEllipse(x, ground-2, lowerR*r.sx, 6*r.sy)
	dc.Fill()

	dc.SetColor(c)
	dc.DrawEllipse(x, lowerY, lowerR*r.sx, lowerR*r.sy*squash)
	dc.Fill()
	dc.DrawEllipse(x, upperY, upperR*r.sx, upperR*r.sy*squash)
	dc.Fill()

	// Eyes
	dc.SetColor(color.White)
	dc.DrawCircle(x-8*r.sx, upperY-4*r.sy, 5*r.sx)
	dc.DrawCircle(x+8*r.sx, upperY-4*r.sy, 5*r.sx)
	dc.Fill()
	dc.SetColor(color.Black)
	dc.DrawCircle(x-8*r.sx, upperY-4*r.sy, 2*r.sx)
	dc.DrawCircle(x+8*r.sx, upperY-4*r.sy, 2*r.sx)
	dc.Fill()
}

func (r *Renderer) drawBall(dc *gg.Context, pos game.Vector2, rotation float32) {
	x, y := r.ToScreen(pos)
	radius := float64(game.BallRadius)

	dc.SetColor(ballColor)
	dc.DrawEllipse(x, y, radius*r.sx, radius*r.sy)
	dc.Fill()

	dc.SetColor(color.Black)
	dc.SetLineWidth(2)
	dc.DrawEllipse(x, y, radius*r.sx, radius*r.sy)
	dc.Stroke()

	// Spin marker
	angle := float64(rotation)
	mx := x + math.Cos(angle)*radius*0.6*r.sx
	my := y + math.Sin(angle)*radius*0.6*r.sy
	dc.SetColor(markerColor)
	dc.DrawCircle(mx, my, 5*r.sx)
	dc.Fill()
}

func (r *Renderer) drawHUD(dc *gg.Context, f Frame) {
	w := float64(r.cfg.Width)
	logic := f.State.Logic

	dc.SetFontFace(r.hudFace)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(sideLabel(f, game.LeftPlayer), 20, 24, 0, 0.5)
	dc.DrawStringAnchored(sideLabel(f, game.RightPlayer), w-20, 24, 1, 0.5)

	dc.SetFontFace(r.bigFace)
	dc.DrawStringAnchored(fmt.Sprintf("%d : %d", logic.Scores[game.LeftPlayer], logic.Scores[game.RightPlayer]), w/2, 32, 0.5, 0.5)

	var banner string
	switch {
	case logic.WinningPlayer != game.NoPlayer:
		banner = fmt.Sprintf("%s wins!", nameOf(f, logic.WinningPlayer))
	case f.Paused:
		banner = "PAUSED"
	}
	if banner != "" {
		dc.DrawStringAnchored(banner, w/2, float64(r.cfg.Height)/3, 0.5, 0.5)
	}
}

func nameOf(f Frame, side game.PlayerSide) string {
	if !side.IsPlayer() {
		return side.String()
	}
	if f.Names[side] != "" {
		return f.Names[side]
	}
	return side.String()
}

// sideLabel marks the serving side with an asterisk.
func sideLabel(f Frame, side game.PlayerSide) string {
	label := nameOf(f, side)
	if f.State.Logic.ServingPlayer == side {
		label += " *"
	}
	return label
}

func parseHexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{255, 255, 255, 255}
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{255, 255, 255, 255}
	}
	return color.RGBA{r, g, b, 255}
}

func getFontPath() string {
	paths := []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"C:\\Windows\\Fonts\\arial.ttf",
		"/Library/Fonts/Arial.ttf",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	matches, _ := filepath.Glob("*.ttf")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
