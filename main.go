package main

import (
	_ "github.com/n0rad/go-erlog/register"

	"github.com/VoxDroid/relman/cmd"
)

func main() {
	cmd.Execute()
}
