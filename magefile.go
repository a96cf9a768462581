//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildTrack)
	mg.Deps(BuildCalibDB)
	fmt.Println("Compilation finished")
	return nil
}

// cgoCommand runs the go tool with CGO enabled, needed by the HDF5 bindings.
func cgoCommand(args ...string) *exec.Cmd {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func BuildTrack() error {
	fmt.Println("Building s800track executable...")
	return cgoCommand("build", "-o", "./bin/s800track", "./s800track").Run()
}

func BuildCalibDB() error {
	fmt.Println("Building calibdb executable...")
	return cgoCommand("build", "-o", "./bin/calibdb", "./calibdb").Run()
}

func Test() error {
	fmt.Println("Running tests...")
	return cgoCommand("test", "./...").Run()
}
