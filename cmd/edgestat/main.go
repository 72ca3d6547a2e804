package main

import "github.com/XinhuiTian/spark/cmd/edgestat/commands"

func main() {
	commands.Execute()
}
