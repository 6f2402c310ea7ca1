package main

import "github.com/pollchain/pollchain-go/cmd"

func main() {
	cmd.Execute()
}
