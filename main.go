package main

import "github.com/naka-gawa/github-pr-stats/cmd"

func main() {
	cmd.Execute()
}
