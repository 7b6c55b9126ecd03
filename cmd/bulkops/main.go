package main

import "github.com/kaizen2025/bulkops/internal/cli"

func main() {
	cli.Execute()
}
