// Package render parses the page templates and executes them into
// (optionally minified) HTML.
package render

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

//go:embed all:www/templates
var builtin embed.FS

// Pages are the top level templates; everything under _partials is
// available to each of them.
var Pages = []string{"index.html"}

// Builtin returns the templates compiled into the binary.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "www/templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer owns the parsed template set.
type Renderer struct {
	fsys      fs.FS
	dir       string // on-disk source of fsys, empty for builtin
	minifier  *minify.M
	templates atomic.Value // map[string]*template.Template
	log       zerolog.Logger
}

// New parses the templates found in dir, or the builtin ones when dir is
// empty. Output is minified when minified is true.
func New(dir string, minified bool, log zerolog.Logger) (*Renderer, error) {
	r := &Renderer{dir: dir, log: log}
	if dir == "" {
		r.fsys = Builtin()
	} else {
		r.fsys = os.DirFS(dir)
	}
	if minified {
		r.minifier = minify.New()
		r.minifier.Add("text/html", &html.Minifier{KeepDocumentTags: true, KeepEndTags: true})
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func parse(fsys fs.FS) (map[string]*template.Template, error) {
	partials, err := fs.Glob(fsys, path.Join("_partials", "*.html"))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't enumerate partial templates")
	}
	templates := make(map[string]*template.Template, len(Pages))
	for _, name := range Pages {
		t, err := template.New(name).Funcs(sprig.FuncMap()).ParseFS(fsys, append([]string{name}, partials...)...)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't parse template %q", name)
		}
		templates[name] = t
	}
	return templates, nil
}

// Reload re-parses every template. On error the previous set stays in use.
func (r *Renderer) Reload() error {
	t1 := time.Now()
	templates, err := parse(r.fsys)
	if err != nil {
		return err
	}
	r.templates.Store(templates)
	r.log.Debug().Int("templates", len(templates)).Dur("took", time.Since(t1)).Msg("parsed templates")
	return nil
}

// Has reports whether name is a known page.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates.Load().(map[string]*template.Template)[name]
	return ok
}

// Render executes page name with data. Nothing is written to w when
// execution fails.
func (r *Renderer) Render(w io.Writer, name string, data interface{}) error {
	t, ok := r.templates.Load().(map[string]*template.Template)[name]
	if !ok {
		return errors.Errorf("no such template %q", name)
	}
	buf := &bytes.Buffer{}
	if err := t.ExecuteTemplate(buf, name, data); err != nil {
		return errors.Wrapf(err, "executing template %q", name)
	}
	if r.minifier == nil {
		_, err := buf.WriteTo(w)
		return err
	}
	return r.minifier.Minify("text/html", w, buf)
}

// Watch reloads templates whenever a file in the template directory
// changes, until ctx is done. It is a no-op for builtin templates.
func (r *Renderer) Watch(ctx context.Context) error {
	if r.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating template watcher")
	}
	defer watcher.Close()
	for _, dir := range []string{r.dir, filepath.Join(r.dir, "_partials")} {
		if s, err := os.Stat(dir); err != nil || !s.IsDir() {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return errors.Wrapf(err, "watching %q", dir)
		}
	}
	r.log.Info().Str("dir", r.dir).Msg("watching templates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.log.Error().Err(err).Str("file", ev.Name).Msg("error reloading templates")
				continue
			}
			r.log.Info().Str("file", ev.Name).Msg("reloaded templates")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Error().Err(err).Msg("template watcher")
		}
	}
}
