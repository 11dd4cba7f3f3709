package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"covid_dashboard/internal/security"
)

func main() {
	var generate bool

	cmd := &cobra.Command{
		Use:           "hash-token",
		Short:         "Print the ADMIN_TOKEN_HASH value for an admin token",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			var err error
			if generate {
				token, err = security.GenerateToken(32)
				if err != nil {
					return err
				}
				fmt.Println("Token (store it now, it is not shown again):")
				fmt.Println(token)
			} else {
				token, err = readToken()
				if err != nil {
					return err
				}
			}

			if err := security.CheckToken(token); err != nil {
				return err
			}
			hash, err := security.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Println("ADMIN_TOKEN_HASH=" + hash)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&generate, "generate", "g", false, "generate a random token instead of reading one")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// readToken reads without echo on a terminal, otherwise the first line of stdin
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Println("Enter admin token:")
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return "", errors.New("no token on stdin")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
