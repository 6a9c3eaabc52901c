package main

import "sportstream/cmd"

func main() {
	cmd.Execute()
}
