package main

import "github.com/CosmoTheDev/ctrlnotify/cmd"

func main() {
	cmd.Execute()
}
