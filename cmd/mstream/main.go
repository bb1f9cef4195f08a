package main

import (
	maddycli "github.com/foxcpp/mailstream/internal/cli"
	_ "github.com/foxcpp/mailstream/internal/cli/ctl"
)

func main() {
	maddycli.Run()
}
