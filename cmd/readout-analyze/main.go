package main

import "github.com/aperez/cmb-readout/cmd/readout-analyze/cmd"

func main() {
	cmd.Execute()
}
