// wiki2html renders wikitext articles to HTML and keeps them in a local
// article store.
//
// Usage:
//
//	wiki2html render [flags] [file]
//	wiki2html import [flags] TITLE [file]
//	wiki2html show [flags] TITLE
//	wiki2html history [flags] TITLE
//	wiki2html backlinks [flags] TITLE
//	wiki2html category [flags] NAME
//	wiki2html preview [flags] [file]
//
// Files default to stdin. The store and renderer are configured by the file
// named with --config or WIKI2HTML_CONFIG.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/arran4/wiki2html"
	"github.com/arran4/wiki2html/ast"
	"github.com/arran4/wiki2html/config"
	"github.com/arran4/wiki2html/parser"
	"github.com/arran4/wiki2html/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		_, _ = os.Stderr.WriteString("wiki2html: " + err.Error() + "\n")
		os.Exit(1)
	}
}

type command struct {
	usage string
	run   func(ctx context.Context, env *env, args []string) error
	flags func(fs *pflag.FlagSet)
}

var commands = map[string]*command{}

func init() {
	commands["render"] = renderCommand()
	commands["import"] = importCommand()
	commands["show"] = showCommand()
	commands["history"] = historyCommand()
	commands["backlinks"] = backlinksCommand()
	commands["category"] = categoryCommand()
	commands["preview"] = previewCommand()
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	fs := pflag.NewFlagSet("wiki2html "+args[0], pflag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file (default: $"+config.EnvVar+")")
	verbose := fs.BoolP("verbose", "v", false, "log debug output to stderr")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wiki2html %s %s\n\nFlags:\n", args[0], cmd.usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	e := &env{cfg: cfg, logger: logger}
	defer e.close()
	return cmd.run(ctx, e, fs.Args())
}

func printUsage() {
	fmt.Fprint(os.Stderr, `wiki2html renders wikitext to HTML.

Commands:
  render     render a wikitext file, or a stored article with --article
  import     save a file as a new revision of an article
  show       render a stored article
  history    list the revisions of an article
  backlinks  list the articles linking to an article
  category   list the articles in a category
  preview    draw an article as a PNG or JPEG image

Run "wiki2html COMMAND --help" for the flags of a command.
`)
}

// env holds what commands share: configuration, logger and the lazily
// opened store.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.Store
}

func (e *env) open(ctx context.Context) (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	sc := e.cfg.Store
	compression, err := store.ParseCompression(sc.Compression)
	if err != nil {
		return nil, err
	}
	if sc.Driver != "memory" {
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o755); err != nil {
			return nil, err
		}
	}
	switch sc.Driver {
	case "memory":
		e.store = store.NewMemory()
	case "sqlite":
		e.store, err = store.OpenSQLite(ctx, store.SQLiteConfig{
			Path:        sc.Path,
			PoolSize:    sc.PoolSize,
			Compression: compression,
			Logger:      e.logger,
		})
	case "bolt":
		e.store, err = store.OpenBolt(store.BoltConfig{Path: sc.Path, Compression: compression})
	default:
		err = fmt.Errorf("unknown store driver %q", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	e.logger.Debug("store opened", slog.String("driver", sc.Driver), slog.String("path", sc.Path))
	return e.store, nil
}

func (e *env) close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store", slog.Any("error", err))
	}
}

// articleRenderer renders through the store's render cache when the
// configuration enables it.
type articleRenderer interface {
	RenderWikitext(ctx context.Context, wikitext string) (*wiki2html.Result, error)
	RenderArticle(ctx context.Context, article *store.Article) (*wiki2html.Result, error)
}

func (e *env) renderer(ctx context.Context) (articleRenderer, error) {
	s, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	rc := e.cfg.Render
	r := wiki2html.New(s, wiki2html.Options{
		ReadBaseURL:       rc.ReadBaseURL,
		EditBaseURL:       rc.EditBaseURL,
		TemplateNamespace: rc.TemplateNamespace,
		MaxTemplateDepth:  rc.MaxTemplateDepth,
		Logger:            e.logger,
	})
	if !rc.Cache {
		return r, nil
	}
	return wiki2html.NewCached(r, s), nil
}

// find loads an article, turning a missing one into an error.
func (e *env) find(ctx context.Context, title string) (*store.Article, error) {
	s, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	article, err := s.FindArticle(ctx, title)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, fmt.Errorf("%q: %w", title, store.ErrNotFound)
	}
	return article, nil
}

func readInput(args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func oneArg(args []string, name string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one %s argument, got %d", name, len(args))
	}
	return args[0], nil
}

func writeResult(res *wiki2html.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := io.WriteString(os.Stdout, res.HTML+"\n")
	return err
}

func renderCommand() *command {
	var article string
	var asJSON bool
	return &command{
		usage: "[flags] [file]",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&article, "article", "", "render the stored article with this title instead of a file")
			fs.BoolVar(&asJSON, "json", false, "print links, categories and redirect alongside the HTML as JSON")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			r, err := e.renderer(ctx)
			if err != nil {
				return err
			}
			var res *wiki2html.Result
			if article != "" {
				a, err := e.find(ctx, article)
				if err != nil {
					return err
				}
				res, err = r.RenderArticle(ctx, a)
				if err != nil {
					return err
				}
			} else {
				text, err := readInput(args)
				if err != nil {
					return err
				}
				res, err = r.RenderWikitext(ctx, text)
				if err != nil {
					return err
				}
			}
			return writeResult(res, asJSON)
		},
	}
}

func importCommand() *command {
	var model, actor, comment string
	return &command{
		usage: "[flags] TITLE [file]",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&model, "model", "wikitext", "content model: wikitext|markdown")
			fs.StringVar(&actor, "actor", os.Getenv("USER"), "name recorded on the revision")
			fs.StringVarP(&comment, "message", "m", "", "revision comment")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if len(args) == 0 || len(args) > 2 {
				return errors.New("expected TITLE [file]")
			}
			cm, err := store.ParseContentModel(model)
			if err != nil {
				return err
			}
			text, err := readInput(args[1:])
			if err != nil {
				return err
			}
			s, err := e.open(ctx)
			if err != nil {
				return err
			}
			rev, err := s.Save(ctx, store.Edit{Title: args[0], Model: cm, Wikitext: text, Actor: actor, Comment: comment})
			if err != nil {
				return err
			}

			// Links are indexed from an uncached render so the saved
			// revision is what gets parsed.
			links, categories, err := indexLinks(ctx, e, cm, text)
			if err != nil {
				return err
			}
			if err := s.SetLinks(ctx, rev.Title, links, categories); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s: revision %d (%s, %d bytes)\n", rev.Title, rev.ID, rev.Hash, rev.Size)
			return nil
		},
	}
}

func indexLinks(ctx context.Context, e *env, model store.ContentModel, text string) ([]string, []store.CategoryLink, error) {
	if model != store.ModelWikitext {
		return nil, nil, nil
	}
	rc := e.cfg.Render
	r := wiki2html.New(e.store, wiki2html.Options{
		ReadBaseURL:       rc.ReadBaseURL,
		EditBaseURL:       rc.EditBaseURL,
		TemplateNamespace: rc.TemplateNamespace,
		MaxTemplateDepth:  rc.MaxTemplateDepth,
		Logger:            e.logger,
	})
	res, err := r.RenderWikitext(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	categories := make([]store.CategoryLink, 0, len(res.Categories))
	for _, c := range res.Categories {
		categories = append(categories, store.CategoryLink{Category: c.Target, Ordinal: c.Ordinal})
	}
	return res.InternalLinks, categories, nil
}

func showCommand() *command {
	var asJSON, source bool
	return &command{
		usage: "[flags] TITLE",
		flags: func(fs *pflag.FlagSet) {
			fs.BoolVar(&asJSON, "json", false, "print the render result as JSON")
			fs.BoolVar(&source, "source", false, "print the stored source instead of rendering it")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			title, err := oneArg(args, "TITLE")
			if err != nil {
				return err
			}
			article, err := e.find(ctx, title)
			if err != nil {
				return err
			}
			if source {
				_, err := io.WriteString(os.Stdout, article.Wikitext)
				return err
			}
			r, err := e.renderer(ctx)
			if err != nil {
				return err
			}
			res, err := r.RenderArticle(ctx, article)
			if err != nil {
				return err
			}
			return writeResult(res, asJSON)
		},
	}
}

func historyCommand() *command {
	return &command{
		usage: "[flags] TITLE",
		run: func(ctx context.Context, e *env, args []string) error {
			title, err := oneArg(args, "TITLE")
			if err != nil {
				return err
			}
			s, err := e.open(ctx)
			if err != nil {
				return err
			}
			revisions, err := s.History(ctx, title)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tACTOR\tSIZE\tHASH\tCOMMENT")
			for _, rev := range revisions {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.12s\t%s\n",
					rev.ID, rev.CreatedAt.Local().Format(time.DateTime), rev.Actor, rev.Size, rev.Hash, rev.Comment)
			}
			return w.Flush()
		},
	}
}

func backlinksCommand() *command {
	return &command{
		usage: "[flags] TITLE",
		run: func(ctx context.Context, e *env, args []string) error {
			title, err := oneArg(args, "TITLE")
			if err != nil {
				return err
			}
			s, err := e.open(ctx)
			if err != nil {
				return err
			}
			titles, err := s.Backlinks(ctx, title)
			if err != nil {
				return err
			}
			return printLines(titles)
		},
	}
}

func categoryCommand() *command {
	return &command{
		usage: "[flags] NAME",
		run: func(ctx context.Context, e *env, args []string) error {
			name, err := oneArg(args, "NAME")
			if err != nil {
				return err
			}
			s, err := e.open(ctx)
			if err != nil {
				return err
			}
			titles, err := s.CategoryMembers(ctx, name)
			if err != nil {
				return err
			}
			return printLines(titles)
		},
	}
}

func printLines(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := io.WriteString(os.Stdout, strings.Join(lines, "\n")+"\n")
	return err
}

func previewCommand() *command {
	var (
		article, out, theme string
		width, thumbnail    int
		noFootnotes         bool
	)
	return &command{
		usage: "[flags] [file]",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&article, "article", "", "draw the stored article with this title instead of a file")
			fs.StringVarP(&out, "out", "o", "out.png", "output image file (.png or .jpg), - for stdout")
			fs.StringVar(&theme, "theme", "", "theme: light|dark (default from config)")
			fs.IntVar(&width, "width", 0, "image width in pixels (default from config)")
			fs.IntVar(&thumbnail, "thumbnail", 0, "scale the image down to this width")
			fs.BoolVar(&noFootnotes, "no-footnotes", false, "do not list external link targets")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			var doc *ast.Document
			if article != "" {
				a, err := e.find(ctx, article)
				if err != nil {
					return err
				}
				if a.Model != store.ModelWikitext {
					return fmt.Errorf("%q: previews support wikitext articles only", a.Title)
				}
				doc = parser.Parse(a.Wikitext)
			} else {
				text, err := readInput(args)
				if err != nil {
					return err
				}
				doc = parser.Parse(text)
			}

			pc := e.cfg.Preview
			if theme == "" {
				theme = pc.Theme
			}
			th, err := wiki2html.ThemeByName(theme)
			if err != nil {
				return err
			}
			fonts, err := wiki2html.LoadFonts(wiki2html.FontConfig{
				RegularPath:    pc.Fonts.Regular,
				BoldPath:       pc.Fonts.Bold,
				ItalicPath:     pc.Fonts.Italic,
				BoldItalicPath: pc.Fonts.BoldItalic,
				MonoPath:       pc.Fonts.Mono,
				Size:           pc.FontSize,
			})
			if err != nil {
				return err
			}
			if width == 0 {
				width = pc.Width
			}
			footnotes := !noFootnotes
			img, err := wiki2html.Preview(doc, wiki2html.PreviewOptions{
				Width:          width,
				Margin:         pc.Margin,
				FontSize:       pc.FontSize,
				Theme:          th,
				Fonts:          fonts,
				LinkFootnotes:  &footnotes,
				ThumbnailWidth: thumbnail,
			})
			if err != nil {
				return err
			}
			return writeImage(img, out)
		},
	}
}

func writeImage(img image.Image, out string) error {
	if out == "-" {
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return errors.New("refusing to write image data to a terminal")
		}
		return png.Encode(os.Stdout, img)
	}

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(out)); ext {
	case ".png":
		err = png.Encode(file, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 92})
	default:
		err = errors.New("unsupported output extension: " + ext)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}
