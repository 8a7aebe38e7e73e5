package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/gcpipe/gcode"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Parse a G-code file and print each command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := check(f, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%d invalid lines", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// check parses every line of r with one parser, so modal commands carry
// over. Each command or error is written to w; the number of invalid lines
// is returned.
func check(r io.Reader, w io.Writer) (int, error) {
	rd := gcode.NewReader(r)
	p := gcode.NewParser()
	var bad int
	for {
		line, err := rd.Read()
		if err == io.EOF {
			return bad, nil
		}
		if err != nil {
			return bad, err
		}

		cmd, err := p.Parse(line)
		if err != nil {
			bad++
			fmt.Fprintf(w, "%d: ERROR: %v\n", rd.Line(), err)
			continue
		}
		fmt.Fprintf(w, "%d: %s\n", rd.Line(), cmd)
	}
}
