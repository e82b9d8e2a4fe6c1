package main

import "github.com/CosmoTheDev/devops-atlas/cmd"

func main() {
	cmd.Execute()
}
