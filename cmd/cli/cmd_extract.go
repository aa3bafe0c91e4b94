package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

var extractFlags struct {
	file string
}

var extractCmd = &cobra.Command{
	Use:   "extract [text...]",
	Short: "Classify indicators locally without querying any source",
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractFlags.file, "file", "f", "", "Read text from file instead of arguments or stdin")
}

func runExtract(cmd *cobra.Command, args []string) error {
	text, err := readInput(args, extractFlags.file, cmd.InOrStdin())
	if err != nil {
		return err
	}

	tokens := domain.ExtractIndicators(text)
	if len(tokens) == 0 {
		return fmt.Errorf("no valid IOCs detected")
	}

	table, err := renderTokens(tokens)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), table)
	return nil
}
