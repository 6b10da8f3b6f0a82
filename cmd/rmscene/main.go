// Command rmscene inspects and builds reMarkable v6 "lines file" documents.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/datastream"
	"github.com/rmscene/rmscene/tagged"
	"github.com/rmscene/rmscene/text"
)

var rootCmd = &cobra.Command{
	Use:   "rmscene",
	Short: "Inspect and build reMarkable v6 lines-file documents",
}

func init() {
	rootCmd.AddCommand(printBlocksCmd, printTextCmd, text2rmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var printBlocksCmd = &cobra.Command{
	Use:   "print-blocks <file>",
	Short: "Dump a file's decoded block data",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrintBlocks,
}

func readBlocksFile(path string) ([]blocks.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	ds := datastream.NewReader(f)
	if err := ds.ReadHeader(); err != nil {
		return nil, err
	}
	decoded, err := blocks.ReadBlocks(tagged.NewReader(ds, nil))
	if err != nil {
		return nil, fmt.Errorf("reading blocks: %w", err)
	}
	return decoded, nil
}

func runPrintBlocks(cmd *cobra.Command, args []string) error {
	decoded, err := readBlocksFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, b := range decoded {
		fmt.Fprintf(out, "\n%#v\n", b)
	}
	return nil
}

var printTextCmd = &cobra.Command{
	Use:   "print-text <file>",
	Short: "Dump a file's text content",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrintText,
}

func runPrintText(cmd *cobra.Command, args []string) error {
	decoded, err := readBlocksFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, b := range decoded {
		rootText, ok := b.(*blocks.RootTextBlock)
		if !ok {
			continue
		}
		lines, err := text.ExtractLines(rootText, nil)
		if err != nil {
			return fmt.Errorf("extracting text: %w", err)
		}
		for _, line := range lines {
			fmt.Fprintln(out, formatLine(line))
		}
	}
	return nil
}

func formatLine(line text.Line) string {
	switch line.Style {
	case text.ParagraphBullet:
		return "- " + line.Text
	case text.ParagraphBullet2:
		return "  + " + line.Text
	case text.ParagraphBold:
		return "> " + line.Text
	case text.ParagraphHeading:
		return "# " + line.Text
	case text.ParagraphPlain:
		return line.Text
	default:
		return fmt.Sprintf("[unknown format %d] %s", line.Style, line.Text)
	}
}

var text2rmCmd = &cobra.Command{
	Use:   "text2rm <file>",
	Short: "Convert stdin text into a minimal lines file",
	Args:  cobra.ExactArgs(1),
	RunE:  runText2rm,
}

func runText2rm(cmd *cobra.Command, args []string) error {
	input, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating %s: %w", args[0], err)
	}
	defer f.Close()

	ds := datastream.NewWriter(f)
	if err := ds.WriteHeader(); err != nil {
		return err
	}
	doc := text.NewPlainDocument(string(input), uuid.New())
	return blocks.WriteBlocks(tagged.NewWriter(ds, nil), doc, blocks.WriteOptions{})
}
