// Command replaytool inspects recorded matches.
//
//	replaytool info   <file.vdr>...
//	replaytool verify [-rules kind] <file.vdr>...
//	replaytool frame  [-step N] [-out frame.png] [-width 800] [-height 600] <file.vdr>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"volley-duel/internal/game"
	"volley-duel/internal/render"
	"volley-duel/internal/replay"
	"volley-duel/internal/rules"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "info":
		err = runInfo(os.Stdout, args)
	case "verify":
		err = runVerify(os.Stdout, args)
	case "frame":
		err = runFrame(os.Stdout, args)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "replaytool: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: replaytool <command> [flags] <file"+replay.FileExtension+">...")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  info    print the attributes of each replay")
	fmt.Fprintln(w, "  verify  re-simulate each replay and check its save points")
	fmt.Fprintln(w, "  frame   render the state at a step to PNG")
}

func runInfo(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("info: no replay given")
	}
	for _, path := range fs.Args() {
		rep, err := replay.LoadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		printInfo(w, path, rep)
	}
	return nil
}

func printInfo(w io.Writer, path string, rep *replay.Replay) {
	winner := "none"
	if side := rep.Winner(); side != game.NoPlayer {
		winner = rep.Names[side]
	}
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  players:     %s vs %s\n", rep.Names[0], rep.Names[1])
	fmt.Fprintf(w, "  score:       %d : %d (winner: %s)\n", rep.Score[0], rep.Score[1], winner)
	fmt.Fprintf(w, "  date:        %s\n", rep.Date.Format(time.RFC3339))
	fmt.Fprintf(w, "  speed:       %d steps/s\n", rep.GameSpeed)
	fmt.Fprintf(w, "  length:      %d steps (%s of play, %s wall time)\n",
		rep.Steps(), stepsDuration(rep.Steps(), rep.GameSpeed), time.Duration(rep.Duration)*time.Second)
	fmt.Fprintf(w, "  save points: %d every %d steps\n", len(rep.SavePoints), rep.Period)
	fmt.Fprintf(w, "  rules:       %s (%s)\n", rules.Describe(rep.Ruleset()), rulesKind(rep))
}

func rulesKind(rep *replay.Replay) string {
	if rep.RulesKind == "" {
		return rules.KindScripted
	}
	return rep.RulesKind
}

func stepsDuration(steps, speed int) time.Duration {
	if speed <= 0 {
		return 0
	}
	return (time.Duration(steps) * time.Second / time.Duration(speed)).Round(time.Second)
}

func runVerify(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	kind := fs.String("rules", "", "rule engine: scripted, fallback or dummy (default: as recorded)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("verify: no replay given")
	}

	failed := 0
	for _, path := range fs.Args() {
		rep, err := replay.LoadFile(path)
		if err == nil {
			var rl game.Rules
			if *kind != "" {
				rl = rules.New(*kind, rep.Ruleset())
			}
			err = replay.Verify(rep, rl)
		}
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(w, "ok   %s (%d steps)\n", path, rep.Steps())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d replays failed", failed, fs.NArg())
	}
	return nil
}

func runFrame(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("frame", flag.ContinueOnError)
	step := fs.Int("step", -1, "step to render; negative means the last one")
	out := fs.String("out", "", "output PNG (default <replay>_<step>.png)")
	width := fs.Int("width", 0, "frame width")
	height := fs.Int("height", 0, "frame height")
	fontPath := fs.String("font", "", "TTF font for the HUD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("frame: exactly one replay expected")
	}
	path := fs.Arg(0)

	rep, err := replay.LoadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	target := *step
	if target < 0 || target > rep.Steps() {
		target = rep.Steps()
	}

	player := replay.NewPlayer(rep, nil)
	player.Seek(target)

	dest := *out
	if dest == "" {
		dest = fmt.Sprintf("%s_%d.png", strings.TrimSuffix(path, replay.FileExtension), target)
	}
	renderer := render.New(render.Config{Width: *width, Height: *height, FontPath: *fontPath})
	frame := render.Frame{State: player.State(), Names: rep.Names, Colors: rep.Colors}
	if err := renderer.SavePNG(dest, frame); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s (step %d of %d)\n", dest, player.Position(), rep.Steps())
	return nil
}
