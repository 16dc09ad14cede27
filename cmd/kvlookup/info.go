package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/hupe1980/kvlookup/internal/kvfile"
)

// InfoCmd describes a store file.
type InfoCmd struct {
	Store  string `arg:"" help:"Store file" type:"existingfile"`
	Verify bool   `help:"Verify the body checksum"`
}

func (c *InfoCmd) Run(out io.Writer) error {
	r, err := kvfile.Open(c.Store, kvfile.Options{Mode: kvfile.ModeFileOnly, VerifyChecksum: c.Verify})
	if err != nil {
		return err
	}
	defer r.Close()

	digest, err := fileDigest(c.Store)
	if err != nil {
		return err
	}

	h := r.Header()
	fmt.Fprintf(out, "file:        %s\n", c.Store)
	fmt.Fprintf(out, "size:        %d bytes\n", r.Size())
	fmt.Fprintf(out, "blake3:      %s\n", digest)
	fmt.Fprintf(out, "version:     %d\n", h.Version)
	fmt.Fprintf(out, "codec:       %s\n", r.Codec().Name())
	fmt.Fprintf(out, "compression: %s\n", h.Compression)
	fmt.Fprintf(out, "checksum:    %08x", h.Checksum)
	if c.Verify {
		fmt.Fprint(out, " (verified)")
	}
	fmt.Fprintln(out)
	for _, m := range r.Maps() {
		fmt.Fprintf(out, "map %q: %d keys, %d slots\n", m.Name, m.Count, m.Capacity)
	}
	return nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
