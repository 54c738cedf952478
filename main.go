/*
Renders the testbed scene with the path tracer. The first argument names the
configuration file, quartz.toml by default.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/quartz/engine"
	"github.com/spaghettifunk/quartz/testbed"
)

func main() {
	configPath := "quartz.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	tb := testbed.NewTestGame(configPath)

	engine, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := engine.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the frame loop owns the renderer, so the signal only asks it to stop
	go func() {
		<-sigCh
		engine.Stop()
	}()

	runErr := engine.Run()
	if err := engine.Shutdown(); err != nil {
		panic(err)
	}
	if runErr != nil {
		panic(runErr)
	}
}
