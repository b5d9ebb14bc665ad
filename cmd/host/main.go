package main

import (
	"flag"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	isServer := flag.Bool("server", false, "run the engine in the server role (the render window still opens)")
	flag.Parse()
	modulePaths := flag.Args()

	game, err := NewGame(modulePaths, *isServer)
	if err != nil {
		log.Fatal(err)
	}
	defer game.Close()

	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle("hostengine")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
