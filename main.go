package main

import "github.com/example/mri-check/cmd"

func main() {
	cmd.Execute()
}
