package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/kvlookup"
)

// GetCmd looks up keys.
type GetCmd struct {
	Store  string               `arg:"" help:"Store file" type:"existingfile"`
	Keys   []string             `arg:"" help:"Keys to look up"`
	Map    string               `help:"Map name" default:"map"`
	Mode   kvlookup.LoadingMode `help:"MEMORY_MAPPED or FILE_ONLY" default:"MEMORY_MAPPED"`
	Verify bool                 `help:"Verify the file checksum before reading"`
}

func (c *GetCmd) Run(out io.Writer) error {
	st, err := kvlookup.OpenFileStore(c.Store, c.Mode, c.Map, kvlookup.WithVerifyChecksum(c.Verify))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	for _, key := range c.Keys {
		v, ok, err := st.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("get %q: %w", key, err)
		}
		if !ok {
			fmt.Fprintf(out, "%s\t<absent>\n", key)
			continue
		}
		b, err := v.MarshalJSON()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", key, b)
	}
	return nil
}
