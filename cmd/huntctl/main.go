package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const usage = `usage: huntctl <command> [arguments]

commands:
  import <file.geojson> [--city C] [--srid 3857] [--buffer 15] [--seed out.json] [--config DIR]
  landmarks <city> [--near LAT,LNG] [--radius 500] [--mercator] [--config DIR]
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "huntctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "import":
		return runImport(args[1:], out)
	case "landmarks":
		return runLandmarks(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
