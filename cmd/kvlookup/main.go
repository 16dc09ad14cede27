// Command kvlookup builds, inspects and applies key-value look-up stores.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/kvlookup"
)

const version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	Config    kong.ConfigFlag `help:"Load flag defaults from a JSON file" type:"existingfile"`
	LogLevel  string          `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string          `name:"log-format" help:"Log format" enum:"text,json" default:"text"`
}

// Logger builds the logger selected by the global flags.
func (g *Globals) Logger() *kvlookup.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(g.LogLevel))
	if g.LogFormat == "json" {
		return kvlookup.NewJSONLogger(level)
	}
	return kvlookup.NewTextLogger(level)
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Build   BuildCmd   `cmd:"" help:"Build a store file from TSV or JSON Lines input"`
	Get     GetCmd     `cmd:"" help:"Look up keys in a store file"`
	Info    InfoCmd    `cmd:"" help:"Describe a store file"`
	Run     RunCmd     `cmd:"" help:"Enrich GATE XML documents"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(out io.Writer) error {
	_, err := io.WriteString(out, "kvlookup "+version+"\n")
	return err
}

func newParser(cli *CLI, out io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("kvlookup"),
		kong.Description("Enrich text annotations from read-only key-value stores"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Configuration(kong.JSON, "~/.config/kvlookup/config.json", ".kvlookup.json"),
		kong.BindTo(out, (*io.Writer)(nil)),
	)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli, os.Stdout)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
