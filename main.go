package main

import "github.com/theirongolddev/kas/cmd"

func main() {
	cmd.Execute()
}
