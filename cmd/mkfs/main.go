// Command mkfs is the offline image builder: it packs the host files named
// on its command line into a fresh extentfs image.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ringzero-os/ringzero/disks"
	"github.com/ringzero-os/ringzero/mkfs"
)

func main() {
	app := cli.App{
		Usage: "Build an extentfs disk image from a list of host files",
		Commands: []*cli.Command{
			{
				Name:      "build",
				Usage:     "Create a fresh image and pack files into its root directory",
				Action:    build,
				ArgsUsage: "OUTPUT_IMAGE [FILE...]",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "size",
						Usage: "image size in bytes, must be a multiple of the block size",
					},
					&cli.StringFlag{
						Name:  "geometry",
						Usage: "named disk geometry preset to size the image from, e.g. 1.44M (overrides --size)",
					},
					&cli.UintFlag{
						Name:  "inodes",
						Usage: "number of inode slots to reserve (0 = one per input file, plus the 3 reserved ids)",
					},
				},
			},
			{
				Name:   "geometries",
				Usage:  "List known disk geometry presets",
				Action: listGeometries,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mkfs: %s", err)
	}
}

func build(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("mkfs build: missing OUTPUT_IMAGE argument", 1)
	}
	outputPath := c.Args().First()

	var files []mkfs.HostFile
	for _, p := range c.Args().Slice()[1:] {
		files = append(files, mkfs.HostFile{HostPath: p})
	}

	opts := mkfs.Options{
		TotalSizeBytes: c.Int64("size"),
		GeometrySlug:   c.String("geometry"),
		NumInodes:      uint32(c.Uint("inodes")),
		Files:          files,
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return mkfs.Build(out, opts)
}

func listGeometries(c *cli.Context) error {
	for _, slug := range disks.ListPredefinedDiskGeometries() {
		geometry, err := disks.GetPredefinedDiskGeometry(slug)
		if err != nil {
			return err
		}
		log.Printf("%-8s %10d bytes  %s", slug, geometry.TotalSizeBytes(), geometry.Name)
	}
	return nil
}
