package httpbin

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"http-kpi/infrastructure/logging"
)

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type TaskResult struct {
	Name string
	Err  error
}

// DefaultTasks is the demo API walkthrough in the order it runs.
func (c *Client) DefaultTasks() []Task {
	return []Task{
		{Name: "basic-auth", Run: c.basicAuth},
		{Name: "cookies", Run: c.cookies},
		{Name: "status-403", Run: c.status403},
		{Name: "extract-json", Run: c.extractJSON},
		{Name: "extract-xml", Run: c.extractXML},
		{Name: "html-title", Run: c.htmlTitle},
		{Name: "post-form", Run: c.postForm},
		{Name: "redirect", Run: c.redirect},
	}
}

// RunTasks runs every task even when an earlier one fails.
func (c *Client) RunTasks(ctx context.Context, tasks []Task) []TaskResult {
	results := make([]TaskResult, 0, len(tasks))
	for _, t := range tasks {
		if ctx.Err() != nil {
			results = append(results, TaskResult{Name: t.Name, Err: ctx.Err()})
			continue
		}
		err := t.Run(ctx)
		if err != nil {
			logging.Error().Err(err).Str("task", t.Name).Msg("Task failed")
		} else {
			logging.Info().Str("task", t.Name).Msg("Task OK")
		}
		results = append(results, TaskResult{Name: t.Name, Err: err})
	}
	return results
}

// decodeJSON unmarshals the body and flags the attempt's record on failure.
func (c *Client) decodeJSON(resp *response, v any) error {
	if err := json.Unmarshal(resp.body, v); err != nil {
		c.markParseError(resp)
		return fmt.Errorf("%w: invalid JSON from %s: %v", ErrUnexpectedResponse, resp.url, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*response, error) {
	resp, err := c.do(ctx, call{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return nil, err
	}
	if err := raiseForStatus(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (c *Client) basicAuth(ctx context.Context) error {
	path := "/basic-auth/" + url.PathEscape(c.cfg.User) + "/" + url.PathEscape(c.cfg.Password)
	resp, err := c.do(ctx, call{method: http.MethodGet, path: path, basicAuth: true})
	if err != nil {
		return err
	}
	logging.Info().Int("status", resp.status).Msg("Basic auth response")
	if err := raiseForStatus(resp); err != nil {
		return err
	}

	var body struct {
		Authenticated bool   `json:"authenticated"`
		User          string `json:"user"`
	}
	if err := c.decodeJSON(resp, &body); err != nil {
		return err
	}
	if !body.Authenticated {
		c.markParseError(resp)
		return fmt.Errorf("%w: authenticated != true", ErrUnexpectedResponse)
	}
	logging.Info().Str("user", body.User).Msg("Basic auth OK")
	return nil
}

func (c *Client) cookies(ctx context.Context) error {
	if _, err := c.get(ctx, "/cookies/set", url.Values{"session": {"activa"}}); err != nil {
		return err
	}
	resp, err := c.get(ctx, "/cookies", nil)
	if err != nil {
		return err
	}

	var body struct {
		Cookies map[string]string `json:"cookies"`
	}
	if err := c.decodeJSON(resp, &body); err != nil {
		return err
	}
	if body.Cookies["session"] != "activa" {
		return fmt.Errorf("%w: session cookie not set, cookies=%v", ErrUnexpectedResponse, body.Cookies)
	}
	logging.Info().Interface("cookies", body.Cookies).Msg("Cookies OK")
	return nil
}

// status403 tolerates a final 403: the denial is logged and recorded, not fatal.
func (c *Client) status403(ctx context.Context) error {
	resp, err := c.do(ctx, call{method: http.MethodGet, path: "/status/403"})
	if err != nil {
		return err
	}
	if resp.status == http.StatusForbidden {
		logging.Warn().Msg("Access denied on /status/403, recorded and continuing")
		return nil
	}
	return raiseForStatus(resp)
}

func (c *Client) extractJSON(ctx context.Context) error {
	resp, err := c.get(ctx, "/get", nil)
	if err != nil {
		return err
	}
	var data any
	if err := c.decodeJSON(resp, &data); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return c.save("datos.json", pretty)
}

type slideshow struct {
	Title  string `xml:"title,attr"`
	Slides []struct {
		Type  string `xml:"type,attr"`
		Title string `xml:"title"`
	} `xml:"slide"`
}

func (c *Client) extractXML(ctx context.Context) error {
	resp, err := c.get(ctx, "/xml", nil)
	if err != nil {
		return err
	}
	var show slideshow
	if err := xml.Unmarshal(resp.body, &show); err != nil {
		c.markParseError(resp)
		return fmt.Errorf("%w: invalid XML: %v", ErrUnexpectedResponse, err)
	}
	if err := c.save("datos.xml", resp.body); err != nil {
		return err
	}
	titles := make([]string, 0, len(show.Slides))
	for _, s := range show.Slides {
		titles = append(titles, s.Title)
	}
	logging.Info().Str("slideshow", show.Title).Strs("slides", titles).Msg("XML parsed")
	return nil
}

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Re    = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
)

const untitled = "SIN_TITULO"

// ExtractTitle returns the page <title>, falling back to the first <h1>.
func ExtractTitle(page []byte) string {
	for _, re := range []*regexp.Regexp{titleRe, h1Re} {
		m := re.FindSubmatch(page)
		if m == nil {
			continue
		}
		text := html.UnescapeString(tagRe.ReplaceAllString(string(m[1]), ""))
		if text = strings.Join(strings.Fields(text), " "); text != "" {
			return text
		}
	}
	return untitled
}

func (c *Client) htmlTitle(ctx context.Context) error {
	resp, err := c.get(ctx, "/html", nil)
	if err != nil {
		return err
	}
	title := ExtractTitle(resp.body)
	if title == untitled {
		c.markParseError(resp)
	}
	logging.Info().Str("title", title).Msg("HTML title extracted")
	return c.save("titulo.html", []byte(title))
}

func (c *Client) postForm(ctx context.Context) error {
	payload := url.Values{
		"nombre":   {"Juan"},
		"apellido": {"Pérez"},
		"correo":   {"juan.perez@example.com"},
		"mensaje":  {"Este es un mensaje de prueba."},
	}
	resp, err := c.do(ctx, call{method: http.MethodPost, path: "/post", form: payload})
	if err != nil {
		return err
	}
	if err := raiseForStatus(resp); err != nil {
		return err
	}
	var body struct {
		Form map[string]string `json:"form"`
	}
	if err := c.decodeJSON(resp, &body); err != nil {
		return err
	}
	if body.Form["correo"] != payload.Get("correo") {
		return fmt.Errorf("%w: form not echoed back, form=%v", ErrUnexpectedResponse, body.Form)
	}
	logging.Info().Interface("form", body.Form).Msg("Form POST OK")
	return nil
}

func (c *Client) redirect(ctx context.Context) error {
	resp, err := c.get(ctx, "/redirect-to", url.Values{"url": {"/get"}})
	if err != nil {
		return err
	}
	var body struct {
		Args map[string]any `json:"args"`
	}
	if err := c.decodeJSON(resp, &body); err != nil {
		return err
	}
	logging.Info().Str("final_url", resp.url.String()).Interface("args", body.Args).Msg("Redirect followed")
	return nil
}

func (c *Client) save(name string, data []byte) error {
	if c.cfg.OutDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", c.cfg.OutDir, err)
	}
	path := filepath.Join(c.cfg.OutDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	logging.Info().Str("path", path).Msg("Saved")
	return nil
}

// Failed joins the errors of the failed tasks, or returns nil.
func Failed(results []TaskResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return errors.Join(errs...)
}
