package main

import "github.com/edvin/proxyctl/internal/cli"

func main() {
	cli.Execute()
}
