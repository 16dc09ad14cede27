package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/hupe1980/kvlookup/codec"
	"github.com/hupe1980/kvlookup/internal/fs"
	"github.com/hupe1980/kvlookup/internal/kvfile"
)

// BuildCmd writes a store file.
type BuildCmd struct {
	Inputs      []string `arg:"" help:"TSV (key<TAB>value) or JSON Lines ({\"key\":..,\"value\":..}) files; .xz is decompressed" type:"existingfile"`
	Output      string   `short:"o" required:"" help:"Store file to write" type:"path"`
	Map         string   `help:"Map name" default:"map"`
	Format      string   `help:"Input format" enum:"auto,tsv,jsonl" default:"auto"`
	Compression string   `help:"Value compression" enum:"none,lz4,zstd" default:"none"`
	Codec       string   `help:"Value codec" enum:"json,go-json" default:"go-json"`
	Upload      string   `help:"Also upload the store to this s3:// or minio:// URL"`
}

func (c *BuildCmd) Run(g *Globals, out io.Writer) error {
	ctx := context.Background()
	log := g.Logger()

	ct, err := kvfile.ParseCompression(c.Compression)
	if err != nil {
		return err
	}
	valueCodec, ok := codec.ByName(c.Codec)
	if !ok {
		return fmt.Errorf("unknown codec %q", c.Codec)
	}

	w := kvfile.NewWriter(kvfile.WithCodec(valueCodec), kvfile.WithCompression(ct))
	if err := w.AddMap(c.Map); err != nil {
		return err
	}
	for _, in := range c.Inputs {
		n := 0
		err := readPairs(in, c.Format, func(key string, value any) error {
			n++
			return w.Add(c.Map, key, value)
		})
		if err != nil {
			return fmt.Errorf("read %s: %w", in, err)
		}
		log.Info("input read", "file", in, "pairs", n)
	}

	if err := w.WriteFile(fs.Default, c.Output); err != nil {
		return fmt.Errorf("write %s: %w", c.Output, err)
	}
	fmt.Fprintf(out, "wrote %s: map %q with %d keys (%s, %s)\n", c.Output, c.Map, w.Len(c.Map), valueCodec.Name(), ct)

	if c.Upload != "" {
		if err := upload(ctx, c.Output, c.Upload); err != nil {
			return fmt.Errorf("upload %s: %w", c.Upload, err)
		}
		fmt.Fprintf(out, "uploaded %s\n", c.Upload)
	}
	return nil
}

func upload(ctx context.Context, path, url string) error {
	target, err := dialRemote(ctx, url)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	return target.Store.Put(ctx, target.Name, f, fi.Size())
}

// inputFormat resolves "auto" from the file extension, ignoring ".xz".
func inputFormat(path, format string) string {
	if format != "auto" && format != "" {
		return format
	}
	switch filepath.Ext(strings.TrimSuffix(path, ".xz")) {
	case ".jsonl", ".ndjson":
		return "jsonl"
	default:
		return "tsv"
	}
}

// readPairs calls fn for every key-value pair of the input file. Blank lines
// and lines starting with '#' are ignored.
func readPairs(path, format string, fn func(key string, value any) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xzr, err := xz.NewReader(f)
		if err != nil {
			return err
		}
		r = xzr
	}

	jsonl := inputFormat(path, format) == "jsonl"
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var (
			key   string
			value any
		)
		if jsonl {
			key, value, err = parseJSONLine(sc.Bytes())
		} else {
			key, value, err = parseTSVLine(text)
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(key, value); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

func parseTSVLine(text string) (string, any, error) {
	key, value, ok := strings.Cut(strings.TrimRight(text, "\r"), "\t")
	if !ok {
		return "", nil, errors.New("missing tab between key and value")
	}
	return key, value, nil
}

func parseJSONLine(b []byte) (string, any, error) {
	var rec struct {
		Key   *string `json:"key"`
		Value any     `json:"value"`
	}
	if err := codec.Default.Unmarshal(b, &rec); err != nil {
		return "", nil, err
	}
	if rec.Key == nil {
		return "", nil, errors.New(`missing "key"`)
	}
	return *rec.Key, rec.Value, nil
}
