package main

import "github.com/oshokin/breathe-tracking/cmd/incident-server/cmd"

func main() {
	cmd.Execute()
}
