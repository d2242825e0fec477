// Package cmd provides the command-line interface of crgsim.
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/crg/board"
)

// Environment variables read from the process or a .env file.
const (
	envBoard       = "CRG_BOARD"
	envLog         = "CRG_LOG"
	envMonitorPort = "CRG_MONITOR_PORT"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "crgsim",
		Short: "crgsim plans and simulates the clocks and resets of a board.",
		Long: `crgsim plans the PLLs of a board, orders its clock domains and ` +
			`simulates the reset sequence of every domain. Boards are either ` +
			`built in or loaded from a YAML file. Defaults can be set in a ` +
			`.env file: ` + envBoard + `, ` + envLog + ` and ` +
			envMonitorPort + `.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("board-file", "",
		"Load the board from a YAML file instead of the built-in tables")

	rootCmd.AddCommand(
		newBoardsCmd(),
		newPlanCmd(),
		newOrderCmd(),
		newSimulateCmd(),
		newHistoryCmd(),
	)

	return rootCmd
}

// Execute loads the .env file and runs the root command.
func Execute() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
	}

	if err := NewRootCommand().Execute(); err != nil {
		atexit.Exit(1)
	}
}

// loadBoard resolves the board from --board-file, the first argument or
// CRG_BOARD, in that order.
func loadBoard(cmd *cobra.Command, args []string) (board.Config, error) {
	file, _ := cmd.Flags().GetString("board-file")
	if file != "" {
		return board.LoadFile(file)
	}

	name := os.Getenv(envBoard)
	if len(args) > 0 {
		name = args[0]
	}

	if name == "" {
		return board.Config{}, fmt.Errorf(
			"no board given; pass a name, --board-file or set %s", envBoard)
	}

	return board.Lookup(name)
}

func monitorPort() int {
	port, err := strconv.Atoi(os.Getenv(envMonitorPort))
	if err != nil {
		return 0
	}

	return port
}
