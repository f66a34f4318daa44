package main

import "photorank-backend/cmd"

func main() {
	cmd.Run()
}
