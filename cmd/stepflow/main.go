package main

import "github.com/xvierd/stepflow/cmd"

func main() {
	cmd.Execute()
}
