// Command blockfsctl formats, mounts, and inspects blockfs volumes,
// grounded on ostafen/digler's cmd/cmd cobra command tree.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soypat/blockfs"
	"github.com/soypat/blockfs/internal/fuseadapter"
)

var numBlocks int64
var label string

func main() {
	root := &cobra.Command{Use: "blockfsctl", Short: "inspect and manipulate blockfs volumes"}
	root.AddCommand(formatCmd(), lsCmd(), catCmd(), mkdirCmd(), cpCmd(), mountCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openVolume(path string) (*blockfs.Filesystem, *blockfs.FileDevice, error) {
	dev, err := blockfs.OpenFileDevice(path, numBlocks)
	if err != nil {
		return nil, nil, err
	}
	fs, err := blockfs.Mount(dev, blockfs.FormatConfig{Label: label, NumBlocks: numBlocks})
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return fs, dev, nil
}

func formatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format <device-file>",
		Short: "format a new volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := blockfs.OpenFileDevice(args[0], numBlocks)
			if err != nil {
				return err
			}
			defer dev.Close()
			fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: label, NumBlocks: numBlocks})
			if err != nil {
				return err
			}
			defer fs.Unmount()
			fmt.Printf("formatted %s: %s capacity\n", args[0], humanize.Bytes(uint64(numBlocks*blockfs.BlockSize)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&numBlocks, "blocks", 19531, "number of blocks in the volume")
	cmd.Flags().StringVar(&label, "label", "", "volume label")
	return cmd
}

func lsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "ls <device-file>",
		Short: "list a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			defer fs.Unmount()
			dd, err := fs.OpenDir(path)
			if err != nil {
				return err
			}
			defer dd.CloseDir()
			for {
				e, err := dd.ReadDir()
				if err != nil {
					return err
				}
				if e == nil {
					break
				}
				kind := "file"
				if e.IsDir {
					kind = "dir"
				}
				fmt.Printf("%-20s %s\n", e.Name, kind)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&numBlocks, "blocks", 19531, "number of blocks in the volume")
	cmd.Flags().StringVar(&path, "path", "/", "directory to list")
	return cmd
}

func catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <device-file> <path>",
		Short: "print a file's contents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			defer fs.Unmount()
			f, err := fs.OpenFile(args[1], blockfs.ModeRead)
			if err != nil {
				return err
			}
			defer f.Close()
			buf := make([]byte, blockfs.BlockSize)
			for {
				n, err := f.Read(buf)
				if n > 0 {
					os.Stdout.Write(buf[:n])
				}
				if n == 0 || err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&numBlocks, "blocks", 19531, "number of blocks in the volume")
	return cmd
}

func mkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <device-file> <path>",
		Short: "create a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			defer fs.Unmount()
			return fs.Mkdir(args[1])
		},
	}
	cmd.Flags().Int64Var(&numBlocks, "blocks", 19531, "number of blocks in the volume")
	return cmd
}

// cpCmd copies a local file into the volume, the CLI's only way to
// populate a volume with existing content since blockfs has no tar
// import/export layer (that's explicitly out of scope).
func cpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp <device-file> <local-src> <volume-dst>",
		Short: "copy a local file into the volume",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			defer fs.Unmount()

			src, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer src.Close()

			dst, err := fs.OpenFile(args[2], blockfs.ModeWrite|blockfs.ModeCreate|blockfs.ModeTrunc)
			if err != nil {
				return err
			}
			defer dst.Close()

			buf := make([]byte, blockfs.BlockSize)
			total := 0
			for {
				n, err := src.Read(buf)
				if n > 0 {
					if _, werr := dst.Write(buf[:n]); werr != nil {
						return werr
					}
					total += n
				}
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
			}
			fmt.Printf("copied %s into %s\n", humanize.Bytes(uint64(total)), args[2])
			return nil
		},
	}
	cmd.Flags().Int64Var(&numBlocks, "blocks", 19531, "number of blocks in the volume")
	return cmd
}

func mountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <device-file> <mountpoint>",
		Short: "mount the volume as a FUSE filesystem (linux only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := openVolume(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			defer fs.Unmount()
			return fuseadapter.Mount(fs, args[1])
		},
	}
	cmd.Flags().Int64Var(&numBlocks, "blocks", 19531, "number of blocks in the volume")
	return cmd
}
