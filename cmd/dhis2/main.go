package main

import (
	"github.com/NadeemAtDure/dhis2-core/lib/cli"
)

func main() {
	cli.Main()
}
