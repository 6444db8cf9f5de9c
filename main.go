package main

import (
	"os"

	"github.com/hjbyt/adb/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
