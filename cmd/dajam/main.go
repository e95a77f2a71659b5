package main

import "dajam-backend/internal/cli"

func main() {
	cli.Execute()
}
