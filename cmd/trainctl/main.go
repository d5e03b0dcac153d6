package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exitErr *cli.ExitCodeError
	if errors.As(err, &exitErr) {
		stop()
		os.Exit(exitErr.Code)
	}
	color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
	stop()
	os.Exit(1)
}
