package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/niivue/medgfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

// archiveCommonFlags are shared by the subcommands that extract payloads.
var archiveCommonFlags = flag.NewFlagSet("", flag.ContinueOnError)

var (
	// verifyChecksums turns on CRC-32 validation of extracted payloads.
	verifyChecksums bool

	// cacheSize keeps up to n decompressed payloads in memory.
	cacheSize int

	// listSort orders list output: "none" keeps archive order.
	listSort string

	// unpackDest is the directory unpack extracts into.
	unpackDest string

	cmdList = &cobra.Command{
		Use:   "list <archive>",
		Short: "List archive entries",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}

	cmdCat = &cobra.Command{
		Use:   "cat <archive> <entry>",
		Short: "Write one entry's content to stdout",
		Args:  cobra.ExactArgs(2),
		RunE:  runCat,
	}

	cmdUnpack = &cobra.Command{
		Use:   "unpack <archive>",
		Short: "Extract all entries to a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnpack,
	}
)

func init() {
	archiveCommonFlags.BoolVar(&verifyChecksums, "checksum", false, "verify entry CRC-32 checksums")
	archiveCommonFlags.IntVar(&cacheSize, "cache", 0, "cache up to n decompressed payloads")

	cmdList.Flags().StringVar(&listSort, "sort", "none", "order entries by name or size")

	cmdCat.Flags().AddFlagSet(archiveCommonFlags)

	cmdUnpack.Flags().AddFlagSet(archiveCommonFlags)
	cmdUnpack.Flags().StringVarP(&unpackDest, "output", "o", ".", "destination directory")

	cmdRoot.AddCommand(cmdList)
	cmdRoot.AddCommand(cmdCat)
	cmdRoot.AddCommand(cmdUnpack)
}

// loadArchive reads and parses an archive under the configured limits.
func loadArchive(path string) (*medgfx.Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	opts := []medgfx.Option{medgfx.WithLimits(limits)}
	if verifyChecksums {
		opts = append(opts, medgfx.WithChecksumVerify())
	}
	if cacheSize > 0 {
		opts = append(opts, medgfx.WithCache(cacheSize))
	}

	archive, err := medgfx.NewArchive(data, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	log.WithFields(log.Fields{
		"archive": path,
		"size":    humanize.IBytes(uint64(archive.Size())),
		"entries": len(archive.Entries()),
	}).Debug("Parsed archive")
	return archive, nil
}

func runList(c *cobra.Command, args []string) error {
	archive, err := loadArchive(args[0])
	if err != nil {
		return err
	}

	// Entries() exposes the archive's own slice; sort a copy.
	entries := append([]*medgfx.Entry(nil), archive.Entries()...)
	switch listSort {
	case "name":
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	case "size":
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].UncompressedSize() < entries[j].UncompressedSize()
		})
	case "none":
	default:
		return fmt.Errorf("unknown sort key %q", listSort)
	}

	var w = tabwriter.NewWriter(os.Stdout, 0, 8, 0, '\t', 0)
	fmt.Fprintln(w, "Size\tMethod\tModified\tName")
	var total uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			humanize.IBytes(uint64(e.UncompressedSize())),
			e.Method(),
			e.ModTime().Format("2006-01-02 15:04"),
			name)
		total += uint64(e.UncompressedSize())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("%d entries, %s uncompressed\n", len(entries), humanize.IBytes(total))
	if comment := archive.Comment(); comment != "" {
		fmt.Printf("comment: %s\n", comment)
	}
	return nil
}

func runCat(c *cobra.Command, args []string) error {
	archive, err := loadArchive(args[0])
	if err != nil {
		return err
	}

	entry, err := archive.Entry(args[1])
	if err != nil {
		return err
	}
	content, err := entry.Extract()
	if err != nil {
		return errors.Wrapf(err, "failed to extract %s", args[1])
	}

	_, err = os.Stdout.Write(content)
	return err
}

func runUnpack(c *cobra.Command, args []string) error {
	archive, err := loadArchive(args[0])
	if err != nil {
		return err
	}

	if err := archive.Unpack(unpackDest); err != nil {
		return errors.Wrapf(err, "failed to unpack %s", args[0])
	}

	log.WithFields(log.Fields{
		"entries": len(archive.Entries()),
		"dest":    unpackDest,
	}).Info("Unpacked archive")
	return nil
}
