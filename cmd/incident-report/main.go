package main

import "github.com/oshokin/breathe-tracking/cmd/incident-report/cmd"

func main() {
	cmd.Execute()
}
