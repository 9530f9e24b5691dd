package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FireFlamingo/GenAI-Hackathon/pkg/launch"
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().BoolP("follow", "f", false, "Follow the log output")
	logsCmd.Flags().IntP("lines", "n", 50, "Number of lines to show from the end")
}

// logsCmd shows the log file of a component
var logsCmd = &cobra.Command{
	Use:   "logs [component]",
	Short: "Show component logs",
	Long: `Display the captured stdout/stderr of a stack component.

Example:
  hubctl logs backend
  hubctl logs web-client -f
  hubctl logs backend -n 200`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	name := args[0]
	follow, _ := cmd.Flags().GetBool("follow")
	lines, _ := cmd.Flags().GetInt("lines")

	registry := launch.NewRegistry(componentsDir(), slog.Default())
	if err := registry.Discover(); err != nil {
		return err
	}

	if _, ok := registry.Get(name); !ok {
		return launch.ErrComponentNotFound(name, componentsDir())
	}

	logPath := launch.LogPath(runDir(), name)

	file, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No logs yet for %s (expected at %s)\n", name, logPath)
			return nil
		}
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if err := printTail(file, lines); err != nil {
		return err
	}

	if !follow {
		return nil
	}

	// Poll for appended content
	for {
		time.Sleep(250 * time.Millisecond)

		n, err := io.Copy(os.Stdout, file)
		if err != nil {
			return err
		}
		if n == 0 {
			// Handle truncation/rotation by reopening
			info, err := os.Stat(logPath)
			if err != nil {
				continue
			}
			pos, _ := file.Seek(0, io.SeekCurrent)
			if info.Size() < pos {
				file.Close()
				file, err = os.Open(logPath)
				if err != nil {
					return err
				}
			}
		}
	}
}

// printTail writes the last n lines of the file and leaves the offset at
// the end for follow mode
func printTail(file *os.File, n int) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return nil
	}

	allLines := strings.Split(content, "\n")
	if len(allLines) > n {
		allLines = allLines[len(allLines)-n:]
	}

	for _, line := range allLines {
		fmt.Println(line)
	}
	return nil
}
