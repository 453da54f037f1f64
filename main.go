package main

import "sudoq/cmd/run"

func main() {
	run.Execute()
}
