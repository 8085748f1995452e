package main

import "github.com/BioHazard786/Rendezvous/cmd"

func main() {
	cmd.Execute()
}
