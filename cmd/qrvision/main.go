package main

import "github.com/MeKo-Tech/qrvision/cmd/qrvision/cmd"

func main() {
	cmd.Execute()
}
