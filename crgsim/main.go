// Command crgsim plans and simulates the clock and reset generator of a
// board.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/crg/crgsim/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
