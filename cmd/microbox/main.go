package main

import (
	"fmt"
	"os"
)

func main() {
	global := &cmdGlobal{}

	root := &cmdRoot{global: global}
	app := root.Command()
	app.PersistentFlags().BoolVar(&global.flagDebug, "debug", false, "Enable debug logging")

	forkinit := &cmdForkinit{global: global}
	app.AddCommand(forkinit.Command())

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "microbox: %s\n", err)
		os.Exit(1)
	}
}
