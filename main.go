package main

import "go-piano/cmd"

func main() {
	cmd.Execute()
}
