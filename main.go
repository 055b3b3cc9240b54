package main

import "github.com/fakeyudi/timeslice/cmd"

func main() {
	cmd.Execute()
}
