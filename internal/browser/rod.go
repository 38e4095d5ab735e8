package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
)

type rodRenderer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func launchRod(cfg Config) (renderer, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, eris.Wrap(err, "browser: connect to chrome")
	}
	return &rodRenderer{browser: b, launcher: l}, nil
}

func (r *rodRenderer) render(ctx context.Context, url string) (*Page, error) {
	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}
	// Crashed or hung pages are always closed so the next request starts clean.
	defer func() { _ = page.Close() }()

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return nil, eris.Wrap(err, "browser: navigate")
	}
	if err := p.WaitLoad(); err != nil {
		return nil, eris.Wrap(err, "browser: wait load")
	}
	// Client-rendered job boards keep fetching after load.
	_ = p.WaitIdle(3 * time.Second)

	html, err := p.HTML()
	if err != nil {
		return nil, eris.Wrap(err, "browser: read html")
	}

	out := &Page{URL: url, HTML: html}
	if info, err := p.Info(); err == nil {
		out.Title = info.Title
		out.URL = info.URL
	}
	if body, err := p.Element("body"); err == nil {
		if text, err := body.Text(); err == nil {
			out.Text = text
		}
	}
	return out, nil
}

func (r *rodRenderer) close() error {
	err := r.browser.Close()
	r.launcher.Kill()
	if err != nil {
		return eris.Wrap(err, "browser: close")
	}
	return nil
}
