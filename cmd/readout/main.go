package main

import "github.com/aperez/cmb-readout/cmd/readout/cmd"

func main() {
	cmd.Execute()
}
