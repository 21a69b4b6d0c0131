package main

import "github.com/illmade-knight/pi-broadcast/cmd"

func main() {
	cmd.Execute()
}
