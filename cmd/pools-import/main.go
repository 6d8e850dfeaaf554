/*Maintenance commands for the pools ledger.*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"moneypools/internal/cli"
	"moneypools/internal/importer"
	"moneypools/internal/log"
	"moneypools/internal/middleware/auth"
)

// globals holds options shared by every command
type globals struct {
	Owner  string `help:"Owner whose ledger is modified." default:"no-auth"`
	DryRun bool   `name:"dry-run" help:"Report what would change without writing."`
}

var commands struct {
	Globals globals `embed`

	ImportCSV         importCSVCmd         `cmd name:"import-csv" help:"Import transactions from a CSV file (date,description,amount,currency,tags)."`
	BackfillReporting backfillReportingCmd `cmd name:"backfill-reporting" help:"Fill in missing reporting currency amounts."`
	Retag             retagCmd             `cmd help:"Tag untagged transactions whose description contains a substring."`
}

type importCSVCmd struct {
	Pool string `arg help:"Target pool id."`
	File string `arg type:"existingfile" help:"CSV file to import."`
}

func (c *importCSVCmd) Run(g *globals, app *cli.App) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, parseErr := importer.Parse(f)
	if parseErr != nil {
		app.Logger.Warn("Some rows could not be parsed", log.FieldError, parseErr)
	}
	if _, err := app.Ledger.GetPool(context.Background(), g.Owner, c.Pool); err != nil {
		return err
	}
	res, err := importer.Import(context.Background(), app.Ledger, g.Owner, c.Pool, rows, g.DryRun, app.Logger)
	if err != nil {
		return err
	}
	fmt.Printf("parsed %d rows, added %d, failed %d\n", len(rows), res.Added, len(res.Failed))
	if parseErr != nil || len(res.Failed) > 0 {
		return fmt.Errorf("import incomplete")
	}
	return nil
}

type backfillReportingCmd struct{}

func (c *backfillReportingCmd) Run(g *globals, app *cli.App) error {
	n, err := app.Ledger.BackfillReporting(context.Background(), g.Owner, g.DryRun)
	if err != nil {
		return err
	}
	verb := "updated"
	if g.DryRun {
		verb = "would update"
	}
	fmt.Printf("%s %d transactions\n", verb, n)
	return nil
}

type retagCmd struct {
	Match string `arg help:"Case-insensitive substring of the description."`
	Tag   string `arg help:"Tag to apply."`
}

func (c *retagCmd) Run(g *globals, app *cli.App) error {
	ts, err := app.Ledger.Retag(context.Background(), g.Owner, c.Match, c.Tag, g.DryRun)
	if err != nil {
		return err
	}
	for _, t := range ts {
		fmt.Printf("%s\t%s\t%s\t%s\n", t.Timestamp.Format("2006-01-02"), t.ID, t.Sum, t.Description)
	}
	fmt.Printf("%d transactions matched\n", len(ts))
	return nil
}

func main() {
	ctx := kong.Parse(&commands,
		kong.Name("pools-import"),
		kong.Description("Import and maintenance commands for the pools ledger."),
		kong.UsageOnError(),
	)

	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(log.ComponentImport)
	if commands.Globals.Owner == "" {
		commands.Globals.Owner = auth.NoAuthOwner
	}

	app, err := cli.NewApp(context.Background(), cfg, logger, false)
	ctx.FatalIfErrorf(err)
	defer app.Close()

	err = ctx.Run(&commands.Globals, app)
	if err != nil {
		_ = app.Close()
	}
	ctx.FatalIfErrorf(err)
}
