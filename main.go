package main

import "settleflow/cmd"

func main() {
	cmd.Execute()
}
