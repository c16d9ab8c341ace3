package main

import "budgetly/internal/cli"

func main() {
	cli.Execute()
}
