package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mrezende/courier/internal/daemon"
	"github.com/mrezende/courier/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	storeFlag := flag.String("store", "", "document store path (overrides profile default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, StorePath: *storeFlag}),
	)

	app.Run()
}
