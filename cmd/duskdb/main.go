package main

import "github.com/duskdb/duskdb/cmd"

func main() {
	cmd.Execute()
}
