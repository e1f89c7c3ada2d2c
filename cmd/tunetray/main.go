package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tunetray/tunetray/pkg/tunetray"
)

var (
	gitCommit  string
	versionTag string
	buildType  string

	verbose bool
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "show verbose logs (useful for debugging)")
	flag.BoolVar(&verbose, "v", false, "shorthand for --verbose")
	flag.Parse()
}

func main() {
	if buildType == "" {
		buildType = "dev"
	}

	// always run in verbose mode for dev builds
	if buildType == "dev" {
		verbose = true
	}

	logger, err := tunetray.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	versionString := fmt.Sprintf("Version %s", versionTag)
	if versionTag == "" {
		versionString = fmt.Sprintf("Dev build (%s)", gitCommit)
		if gitCommit == "" {
			versionString = "Dev build"
		}
	}

	t, err := tunetray.NewTuneTray(logger, verbose)
	if err != nil {
		named.Fatalw("Failed to create tunetray object", "error", err)
	}

	t.SetVersion(versionString)

	if err := t.Initialize(); err != nil {
		named.Fatalw("Failed to initialize tunetray", "error", err)
		os.Exit(1)
	}
}
