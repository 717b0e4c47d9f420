package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ColonelBlimp/cwkeyer/internal/morse"
	"github.com/spf13/cobra"
)

var encodeCmd = &cobra.Command{
	Use:   "encode [text...]",
	Short: "Convert text to dots and dashes",
	Long: `Converts text to Morse notation: letters separated by a space, words by "_".
Reads standard input line by line when no text is given.`,
	Example: `  cwkeyer encode SOS
  echo "hello world" | cwkeyer encode`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return transform(cmd, args, morse.Encode)
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
}

// transform applies fn to the joined args, or to each line of stdin.
func transform(cmd *cobra.Command, args []string, fn func(string) string) error {
	out := cmd.OutOrStdout()
	if len(args) > 0 {
		_, err := fmt.Fprintln(out, fn(strings.Join(args, " ")))
		return err
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if _, err := fmt.Fprintln(out, fn(scanner.Text())); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
