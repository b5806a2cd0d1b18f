//go:build mage
// +build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

func Build() error {
	return sh.Run(mg.GoCmd(), "build", "./...")
}

func Test() error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	return sh.Run(mg.GoCmd(), args...)
}

// Race runs the tests with the race detector.
func Race() error {
	return sh.Run(mg.GoCmd(), "test", "-race", "./...")
}

// Anchorctl installs the anchorctl command.
func Anchorctl() error {
	mg.Deps(Build)
	return sh.RunWith(map[string]string{"CGO_ENABLED": cgoEnabled()}, mg.GoCmd(), "install", "./cmd/anchorctl")
}

// The sqlite3 store needs cgo.
func cgoEnabled() string {
	if v := os.Getenv("CGO_ENABLED"); v != "" {
		return v
	}
	return "1"
}
