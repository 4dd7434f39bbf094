package main

import "github.com/oshokin/breathe-tracking/cmd/breathe-monitor/cmd"

func main() {
	cmd.Execute()
}
