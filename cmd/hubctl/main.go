package main

import (
	"github.com/FireFlamingo/GenAI-Hackathon/cmd/hubctl/cmd"
)

func main() {
	cmd.Execute()
}
