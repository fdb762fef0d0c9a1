package main

import "github.com/deploymenttheory/go-carver/cmd"

func main() {
	cmd.Execute()
}
