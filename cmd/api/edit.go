package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"skribe/api/internal/editor"
)

var (
	editInput     string
	editSelection string
	editWrite     bool
)

var editCmd = &cobra.Command{
	Use:   "edit <tool> <file>",
	Short: "Apply an edit tool to a local markdown file",
	Long: `Apply one of the assistant's edit tools to a markdown file.

Tools: ` + strings.Join(editor.Names(), ", ") + `

Examples:
  skribe-api edit find_and_replace plan.md --input '{"find_text":"Q3","replace_with":"Q4","replace_all":true}'
  skribe-api edit insert_at_position plan.md --input '{"position":"after:Goals","content":"- Ship v2"}' --write
  skribe-api edit replace_selection plan.md --selection 10:24 --input '{"new_content":"shorter"}'

The file "-" reads from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, path := args[0], args[1]
		if editWrite && path == "-" {
			return errors.New("--write needs a file, not stdin")
		}

		content, err := readSource(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		input := map[string]any{}
		if strings.TrimSpace(editInput) != "" {
			if err := json.Unmarshal([]byte(editInput), &input); err != nil {
				return fmt.Errorf("parse --input: %w", err)
			}
		}

		var sel *editor.Selection
		if editSelection != "" {
			if sel, err = parseSelection(editSelection, content); err != nil {
				return err
			}
		}

		res := editor.Execute(tool, input, content, sel)
		fmt.Fprintln(cmd.ErrOrStderr(), res.Message)
		if !res.Success {
			return errors.New("edit failed")
		}

		if editWrite {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			return os.WriteFile(path, []byte(res.NewContent), info.Mode().Perm())
		}
		_, err = io.WriteString(cmd.OutOrStdout(), res.NewContent)
		return err
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().StringVarP(&editInput, "input", "i", "", "Tool input as a JSON object")
	editCmd.Flags().StringVarP(&editSelection, "selection", "s", "", "Selected range as start:end rune offsets")
	editCmd.Flags().BoolVarP(&editWrite, "write", "w", false, "Write the result back to the file instead of stdout")
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8", path)
	}
	return string(data), nil
}

func parseSelection(value, content string) (*editor.Selection, error) {
	var start, end int
	if _, err := fmt.Sscanf(value, "%d:%d", &start, &end); err != nil {
		return nil, fmt.Errorf("--selection must be start:end, got %q", value)
	}
	runes := []rune(content)
	sel := &editor.Selection{StartOffset: start, EndOffset: end}
	if start >= 0 && start <= end && end <= len(runes) {
		sel.Text = string(runes[start:end])
	}
	return sel, nil
}
