package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/coldvault/mdcache/cache"
	"github.com/coldvault/mdcache/common"
	"github.com/coldvault/mdcache/config"
	"github.com/coldvault/mdcache/iodrv"
)

const demoClassID cache.ClassID = 1

// blobClass is the trivial entry class this CLI uses to demonstrate the
// cache verbs against: a payload is just a byte slice, serialized
// as-is.
type blobClass struct{}

func (blobClass) ID() cache.ClassID      { return demoClassID }
func (blobClass) Flags() cache.ClassFlags { return 0 }
func (blobClass) GetLoadSize(userData interface{}) (int, error) {
	if n, ok := userData.(int); ok {
		return n, nil
	}
	return 128, nil
}
func (blobClass) Deserialize(image []byte, size int, userData interface{}) (interface{}, error) {
	out := make([]byte, size)
	copy(out, image)
	return out, nil
}
func (blobClass) ImageLen(payload interface{}) int { return len(payload.([]byte)) }
func (blobClass) PreSerialize(payload interface{}, address common.Address) (cache.PreSerializeResult, error) {
	return cache.PreSerializeResult{}, nil
}
func (blobClass) Serialize(payload interface{}, out []byte) error {
	copy(out, payload.([]byte))
	return nil
}
func (blobClass) Notify(event cache.NotifyEvent, payload interface{}) error { return nil }
func (blobClass) FreeICR(payload interface{})                              {}

// openDemoCache builds a throwaway in-memory cache for the CLI to
// operate against. A real deployment would open an on-disk container;
// this keeps the CLI self-contained for demonstration and smoke-testing
// of the verbs.
func openDemoCache() (*cache.Cache, error) {
	registry := cache.NewRegistry(blobClass{})
	dispatcher := iodrv.NewDispatcher()
	if err := dispatcher.Open(iodrv.NewMemDriver(), "demo"); err != nil {
		return nil, err
	}
	return cache.New(cache.Options{
		MaxSize:      1 << 20,
		MinCleanSize: 1 << 18,
		Registry:     registry,
		Dispatcher:   dispatcher,
		AutoResize:   config.AutoResize{MinSize: 1 << 16, InitialSize: 1 << 20, MaxSize: 1 << 24},
	})
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "print current cache size and hit rate",
	Action: func(ctx *cli.Context) error {
		c, err := openDemoCache()
		if err != nil {
			return err
		}
		current, max := c.GetCacheSize()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"metric", "value"})
		table.Append([]string{"current_size", common.StorageSize(current).String()})
		table.Append([]string{"max_size", common.StorageSize(max).String()})
		table.Append([]string{"hit_rate", fmt.Sprintf("%.2f%%", c.GetCacheHitRate()*100)})
		table.Render()
		return nil
	},
}

var insertCmd = cli.Command{
	Name:      "insert",
	Usage:     "insert <address-hex> <size>",
	ArgsUsage: "<address-hex> <size>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.NewExitError("insert requires an address and a size", 1)
		}
		var addr uint64
		if _, err := fmt.Sscanf(ctx.Args().Get(0), "0x%x", &addr); err != nil {
			return err
		}
		var size int
		if _, err := fmt.Sscanf(ctx.Args().Get(1), "%d", &size); err != nil {
			return err
		}

		c, err := openDemoCache()
		if err != nil {
			return err
		}
		payload := make([]byte, size)
		if err := c.Insert(common.Address(addr), demoClassID, common.Address(addr), common.RingUser, payload, false); err != nil {
			return err
		}
		color.Green("inserted entry at 0x%x (%d bytes)", addr, size)
		return nil
	},
}

var protectCmd = cli.Command{
	Name:      "protect",
	Usage:     "protect <address-hex>",
	ArgsUsage: "<address-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.NewExitError("protect requires an address", 1)
		}
		var addr uint64
		if _, err := fmt.Sscanf(ctx.Args().Get(0), "0x%x", &addr); err != nil {
			return err
		}
		c, err := openDemoCache()
		if err != nil {
			return err
		}
		if _, err := c.Protect(common.Address(addr), demoClassID, 128, false); err != nil {
			return err
		}
		if err := c.Unprotect(common.Address(addr), cache.UnprotectFlags{}); err != nil {
			return err
		}
		color.Yellow("protected and released 0x%x", addr)
		return nil
	},
}

var flushCmd = cli.Command{
	Name:  "flush",
	Usage: "flush every dirty entry to the backing driver",
	Action: func(ctx *cli.Context) error {
		c, err := openDemoCache()
		if err != nil {
			return err
		}
		if err := c.Flush(cache.FlushClean); err != nil {
			return err
		}
		color.Cyan("flush complete")
		return nil
	},
}
