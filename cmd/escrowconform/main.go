package main

import "github.com/LeJamon/goEscrowConform/internal/cli"

func main() {
	cli.Execute()
}
