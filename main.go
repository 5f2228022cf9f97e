package main

import "pixfit/cmd"

func main() {
	cmd.Execute()
}
