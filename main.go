package main

import "github.com/Youssefbenarbiya/booki-relay/cmd"

func main() {
	cmd.Execute()
}
