// Command fsck checks an extentfs image for consistency: bitmap
// consistency, extent/data-bitmap consistency, and directory symmetry.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ringzero-os/ringzero/blockdev"
	"github.com/ringzero-os/ringzero/extentfs"
	"github.com/ringzero-os/ringzero/extentfs/fsck"
)

func main() {
	app := cli.App{
		Usage:     "Check an extentfs image for consistency",
		Action:    check,
		ArgsUsage: "IMAGE",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fsck: %s", err)
	}
}

func check(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("fsck: expected exactly one IMAGE argument", 1)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	dev, err := blockdev.NewFromStream(f)
	if err != nil {
		return err
	}

	mount, err := extentfs.MountDevice(dev)
	if err != nil {
		return err
	}

	if err := fsck.Check(mount); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	log.Println("fsck: no inconsistencies found")
	return nil
}
