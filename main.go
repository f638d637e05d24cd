package main

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/circlepay/cmd"
	"github.com/mezonai/circlepay/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("LEDGER CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
