package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/niivue/medgfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// formatName selects the envelope compress writes.
	formatName string

	// streamOutput is the output path; "-" means stdout.
	streamOutput string

	cmdCompress = &cobra.Command{
		Use:   "compress <file>",
		Short: "Compress a file into a gzip, zlib or raw deflate stream",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompress,
	}

	cmdDecompress = &cobra.Command{
		Use:   "decompress <file>",
		Short: "Decompress a stream, autodetecting its envelope",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecompress,
	}

	cmdDetect = &cobra.Command{
		Use:   "detect <file>",
		Short: "Print the detected stream envelope",
		Args:  cobra.ExactArgs(1),
		RunE:  runDetect,
	}
)

// extensions matches the envelope names compress emits.
var extensions = map[medgfx.Format]string{
	medgfx.FormatGzip:       ".gz",
	medgfx.FormatZlib:       ".zz",
	medgfx.FormatDeflateRaw: ".deflate",
}

func init() {
	cmdCompress.Flags().StringVarP(&formatName, "format", "f", "gzip", "envelope: gzip, zlib or deflate-raw")
	cmdCompress.Flags().StringVarP(&streamOutput, "output", "o", "", "output path, - for stdout")

	cmdDecompress.Flags().StringVarP(&streamOutput, "output", "o", "", "output path, - for stdout")

	cmdRoot.AddCommand(cmdCompress)
	cmdRoot.AddCommand(cmdDecompress)
	cmdRoot.AddCommand(cmdDetect)
}

// readInput reads a file argument, with - standing for stdin.
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func runCompress(c *cobra.Command, args []string) error {
	format, err := medgfx.ParseFormat(formatName)
	if err != nil {
		return err
	}

	data, err := readInput(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}

	packed, err := medgfx.Compress(data, format)
	if err != nil {
		return errors.Wrapf(err, "failed to compress %s", args[0])
	}

	out := streamOutput
	if out == "" {
		if args[0] == "-" {
			out = "-"
		} else {
			out = args[0] + extensions[format]
		}
	}
	if err := writeOutput(out, packed); err != nil {
		return errors.Wrapf(err, "failed to write %s", out)
	}

	log.WithFields(log.Fields{
		"format": format,
		"in":     humanize.IBytes(uint64(len(data))),
		"out":    humanize.IBytes(uint64(len(packed))),
	}).Info("Compressed stream")
	return nil
}

func runDecompress(c *cobra.Command, args []string) error {
	data, err := readInput(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}

	codec := medgfx.Codec{MaxDecodedSize: limits.MaxDecodedSize}
	raw, err := codec.Decompress(data)
	if err != nil {
		return errors.Wrapf(err, "failed to decompress %s", args[0])
	}

	out := streamOutput
	if out == "" {
		out = defaultDecompressedName(args[0])
	}
	if err := writeOutput(out, raw); err != nil {
		return errors.Wrapf(err, "failed to write %s", out)
	}

	log.WithFields(log.Fields{
		"format": medgfx.DetectFormat(data),
		"in":     humanize.IBytes(uint64(len(data))),
		"out":    humanize.IBytes(uint64(len(raw))),
	}).Info("Decompressed stream")
	return nil
}

// defaultDecompressedName strips a known envelope extension, falling back
// to an .out suffix so the input is never overwritten.
func defaultDecompressedName(in string) string {
	if in == "-" {
		return "-"
	}
	for _, ext := range extensions {
		if trimmed := strings.TrimSuffix(in, ext); trimmed != in && trimmed != "" {
			return trimmed
		}
	}
	return in + ".out"
}

func runDetect(c *cobra.Command, args []string) error {
	data, err := readInput(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}
	if len(data) == 0 {
		return medgfx.ErrEmptyData
	}

	format := medgfx.DetectFormat(data)
	log.WithFields(log.Fields{
		"gzip_magic": medgfx.IsCompressed(data),
		"bytes":      len(data),
	}).Debug("Detected stream envelope")

	fmt.Println(format)
	return nil
}
