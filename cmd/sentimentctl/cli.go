package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/bryanwahyu/sentiment-api/internal/app"
	appanalysis "github.com/bryanwahyu/sentiment-api/internal/application/analysis"
	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/infra/export"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app.App) *cli.App {
	cliApp := &cli.App{
		Name:    "sentimentctl",
		Usage:   "Operate the sentiment analysis service from the shell",
		Version: Version,
		Commands: []*cli.Command{
			analyzeCmd(a),
			extractCmd(a),
			historyCmd(a),
			exportCmd(a),
			syncCmd(a),
			statusCmd(a),
		},
	}
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Text to analyse"},
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Image or PDF to analyse"},
		&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Web page to analyse"},
	}
}

func analyzeCmd(a *app.App) *cli.Command {
	flags := append(inputFlags(),
		&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner id; records are only saved when set"},
		&cli.BoolFlag{Name: "no-translate", Usage: "Disable auto translation before classification"},
	)
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyse exactly one of --text, --file or --url",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cmd, err := commandFromFlags(c)
			if err != nil {
				return outputError(err)
			}
			cmd.OwnerID = c.String("owner")
			cmd.AutoTranslate = !c.Bool("no-translate")

			var res *appanalysis.AnalyzeResult
			switch {
			case cmd.File != nil && cmd.Text == "" && cmd.URL == "":
				res, err = a.Analysis.AnalyzeFile(c.Context, cmd)
			case cmd.URL != "" && cmd.Text == "" && cmd.File == nil:
				res, err = a.Analysis.AnalyzeURL(c.Context, cmd)
			case cmd.Text != "" && cmd.URL == "" && cmd.File == nil:
				res, err = a.Analysis.AnalyzeText(c.Context, cmd)
			default:
				res, err = a.Analysis.AnalyzeMulti(c.Context, cmd)
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, struct {
				ID      string `json:"id,omitempty"`
				Storage string `json:"storage,omitempty"`
				domain.Result
			}{ID: res.Record.ID, Storage: res.Storage, Result: res.Record.Result})
		},
	}
}

func extractCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Print the text extracted from --file or --url without analysing it",
		Flags: inputFlags(),
		Action: func(c *cli.Context) error {
			cmd, err := commandFromFlags(c)
			if err != nil {
				return outputError(err)
			}
			ex, err := a.Analysis.Extract(c.Context, cmd)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{
				"text":     ex.Text,
				"type":     ex.Kind,
				"sourceId": ex.SourceID,
				"method":   ex.Method,
			})
		},
	}
}

func historyCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List an owner's saved analyses, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Required: true, Usage: "Owner id"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max records"},
			&cli.BoolFlag{Name: "favorites", Usage: "Only favorites"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Filter by text, summary or tag"},
		},
		Action: func(c *cli.Context) error {
			owner := c.String("owner")
			var (
				recs []*domain.Record
				err  error
			)
			switch {
			case c.String("search") != "":
				recs, err = a.History.Search(c.Context, owner, c.String("search"))
			case c.Bool("favorites"):
				recs, err = a.History.Favorites(c.Context, owner, c.Int("limit"))
			default:
				recs, err = a.History.List(c.Context, owner, domain.ListFilter{Limit: c.Int("limit")})
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, recs)
		},
	}
}

func exportCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write an owner's history to an xlsx file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Required: true, Usage: "Owner id"},
			&cli.StringFlag{Name: "out", Value: "sentiment-history.xlsx", Usage: "Output path"},
		},
		Action: func(c *cli.Context) error {
			recs, err := a.History.List(c.Context, c.String("owner"), domain.ListFilter{Limit: 100})
			if err != nil {
				return outputError(err)
			}
			data, err := export.HistoryXLSX(recs)
			if err != nil {
				return outputError(err)
			}
			if err := os.WriteFile(c.String("out"), data, 0o600); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"path": c.String("out"), "records": len(recs)})
		},
	}
}

func syncCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Push locally saved records to the remote store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner id (default: every owner with local records)"},
		},
		Action: func(c *cli.Context) error {
			if owner := c.String("owner"); owner != "" {
				report, err := a.History.Restore(c.Context, owner)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, report)
			}
			reports, err := a.History.RestoreAll(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, reports)
		},
	}
}

func statusCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show remote reachability and pending local records for an owner",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Required: true, Usage: "Owner id"},
		},
		Action: func(c *cli.Context) error {
			st, err := a.History.Status(c.Context, c.String("owner"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, st)
		},
	}
}

// commandFromFlags reads --text/--file/--url. Exactly-one is enforced by
// the service so the CLI reports the same errors as the API.
func commandFromFlags(c *cli.Context) (appanalysis.AnalyzeCommand, error) {
	cmd := appanalysis.AnalyzeCommand{Text: c.String("text"), URL: c.String("url")}
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cmd, err
		}
		cmd.File = &appanalysis.File{Name: filepath.Base(path), ContentType: detectType(path, data), Data: data}
	}
	return cmd, nil
}

func detectType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func outputJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if e, ok := domain.AsError(err); ok {
		msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
		if e.Details != "" {
			msg += ": " + e.Details
		}
		for _, s := range e.Suggestions {
			msg += "\n  - " + s
		}
		return cli.Exit(msg, 1)
	}
	return cli.Exit(err.Error(), 1)
}
