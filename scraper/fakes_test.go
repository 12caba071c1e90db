package scraper

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"ecotrade_flows/models"
)

type checkCall struct {
	selector string
	nth      int
	row      int
}

// fakeDownload saves through the page connection like a playwright
// artifact does: SaveAs needs conn, which is held while events are emitted.
type fakeDownload struct {
	name string
	data []byte
	err  error
	conn *sync.Mutex
}

func (d fakeDownload) SuggestedFilename() string { return d.name }

func (d fakeDownload) SaveAs(path string) error {
	if d.conn != nil {
		d.conn.Lock()
		d.conn.Unlock()
	}
	if d.err != nil {
		return d.err
	}
	return os.WriteFile(path, d.data, 0644)
}

// redirect moves the fake page to another URL with new content when a
// script runs.
type redirect struct {
	url     string
	content string
}

// fakePage is a scripted Page. Tables are served by exact selector and
// scripts can deliver downloads or redirect.
type fakePage struct {
	mu   sync.Mutex
	conn sync.Mutex

	url        string
	content    string
	pageByURL  map[string]string
	tables     map[string][]string
	downloads  map[string]Download
	redirects  map[string]redirect
	scriptErr  map[string]error
	clickErr   map[string]error
	waitErr    error
	onDownload func(Download)

	clicks  []string
	typed   map[string]string
	filled  map[string]string
	checked []checkCall
	scripts []string
	closed  int
}

func newFakePage() *fakePage {
	return &fakePage{
		pageByURL: map[string]string{},
		tables:    map[string][]string{},
		downloads: map[string]Download{},
		redirects: map[string]redirect{},
		scriptErr: map[string]error{},
		clickErr:  map[string]error{},
		typed:     map[string]string{},
		filled:    map[string]string{},
	}
}

func (p *fakePage) navigate(url string) {
	p.url = url
	if c, ok := p.pageByURL[url]; ok {
		p.content = c
	}
}

func (p *fakePage) Goto(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigate(url)
	return nil
}

func (p *fakePage) WaitForURL(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigate(url)
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	return p.clickErr[selector]
}

func (p *fakePage) TypeKey(_ context.Context, selector, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[selector] += key
	return nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled[selector] = value
	return nil
}

func (p *fakePage) Count(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tables[selector]), nil
}

func (p *fakePage) OuterHTML(_ context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tables[selector], nil
}

func (p *fakePage) CheckRow(_ context.Context, selector string, nth, row int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = append(p.checked, checkCall{selector: selector, nth: nth, row: row})
	return nil
}

func (p *fakePage) WaitFor(_ context.Context, _ string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

func (p *fakePage) Evaluate(_ context.Context, script string) error {
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	if err := p.scriptErr[script]; err != nil {
		p.mu.Unlock()
		return err
	}
	if r, ok := p.redirects[script]; ok {
		p.url = r.url
		p.content = r.content
	}
	d, ok := p.downloads[script]
	fn := p.onDownload
	p.mu.Unlock()

	if ok && fn != nil {
		if fd, isFake := d.(fakeDownload); isFake {
			fd.conn = &p.conn
			d = fd
		}
		go p.emit(fn, d)
	}
	return nil
}

// emit delivers a download event while holding the connection.
func (p *fakePage) emit(fn func(Download), d Download) {
	p.conn.Lock()
	defer p.conn.Unlock()
	fn(d)
}

func (p *fakePage) Content(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) OnDownload(fn func(Download)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDownload = detached(fn)
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) checkedOn(selector string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var rows []int
	for _, c := range p.checked {
		if c.selector == selector {
			rows = append(rows, c.row)
		}
	}
	return rows
}

type fakeBrowser struct {
	page     *fakePage
	err      error
	sessions int
}

func (b *fakeBrowser) NewSession(context.Context, *models.Account) (Page, error) {
	b.sessions++
	if b.err != nil {
		return nil, b.err
	}
	return b.page, nil
}

var errBoom = errors.New("boom")
