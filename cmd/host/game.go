package main

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"hostengine/internal/core/engine"
)

// Game is the thinnest possible ebiten.Game wrapper around an Engine:
// it exists to drive Dispatch once per tick under a real frame loop.
// Rendering guest state is a collaborator's job, not this package's —
// matching the teacher's own core.Game, which keeps Update/Draw/Layout
// minimal and leaves the interesting logic to the systems it drives.
type Game struct {
	eng *engine.Engine
}

// NewGame loads modulePaths as guests, runs their init turn, and returns
// a Game ready to be handed to ebiten.RunGame.
func NewGame(modulePaths []string, isServer bool) (*Game, error) {
	eng, err := engine.New(modulePaths, isServer)
	if err != nil {
		return nil, err
	}
	if err := eng.Init(); err != nil {
		return nil, err
	}
	return &Game{eng: eng}, nil
}

// Close releases the underlying engine's guest VMs.
func (g *Game) Close() {
	g.eng.Close()
}

func (g *Game) Update() error {
	return g.eng.Dispatch(engine.Update)
}

func (g *Game) Draw(screen *ebiten.Image) {
	ebitenutil.DebugPrint(screen, "hostengine running")
	screen.Fill(color.RGBA{20, 20, 30, 255})
}

func (g *Game) Layout(_, _ int) (screenWidth, screenHeight int) {
	return 1280, 720
}
