package cmd

import (
	"github.com/ColonelBlimp/cwkeyer/internal/morse"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [code...]",
	Short: "Convert dots and dashes to text",
	Long: `Converts Morse notation back to text. Letters are separated by spaces and
words by "_"; unknown codes decode to "?". Reads standard input line by line
when no code is given.`,
	Example: `  cwkeyer decode ... --- ...
  cwkeyer encode "hi there" | cwkeyer decode`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return transform(cmd, args, morse.Decode)
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
