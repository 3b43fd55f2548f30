package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Rendered is a message ready for a transport.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// Renderer turns a Message into subject and bodies.
type Renderer struct {
	product  string
	baseURL  string
	location *time.Location
	text     map[Kind]*template.Template
	html     map[Kind]*htmltemplate.Template
}

var linkPaths = map[Kind]string{
	KindVerification:  "/verify-email",
	KindPasswordReset: "/reset-password",
}

// NewRenderer parses the embedded templates. baseURL prefixes the links
// carried by verification and reset messages.
func NewRenderer(product, baseURL string, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{
		product:  product,
		baseURL:  strings.TrimRight(baseURL, "/"),
		location: loc,
		text:     make(map[Kind]*template.Template),
		html:     make(map[Kind]*htmltemplate.Template),
	}

	for _, k := range []Kind{
		KindWelcome, KindVerification, KindPasswordReset, KindPasswordChanged,
		KindLogin, KindSecurityAlert, KindAccountLocked,
	} {
		file := "templates/" + string(k) + ".tmpl"
		t, err := template.ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s: %w", file, err)
		}
		h, err := htmltemplate.ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s: %w", file, err)
		}
		r.text[k] = t
		r.html[k] = h
	}
	return r, nil
}

type templateData struct {
	Product   string
	Name      string
	Email     string
	Link      string
	ExpiresAt string
	At        string
	Device    Device
	Alert     Alert
}

// Render produces the subject and bodies for m.
func (r *Renderer) Render(m Message) (Rendered, error) {
	t, ok := r.text[m.Kind]
	if !ok {
		return Rendered{}, fmt.Errorf("notify: unknown kind %q", m.Kind)
	}

	name := m.To.Name
	if name == "" {
		name = m.To.Email
	}
	data := templateData{
		Product: r.product,
		Name:    name,
		Email:   m.To.Email,
		Device:  m.Device,
		Alert:   m.Alert,
	}
	if !m.ExpiresAt.IsZero() {
		data.ExpiresAt = r.format(m.ExpiresAt)
	}
	if !m.At.IsZero() {
		data.At = r.format(m.At)
	}
	if p, ok := linkPaths[m.Kind]; ok && m.Token != "" {
		data.Link = r.baseURL + p + "?token=" + url.QueryEscape(m.Token)
	}

	var out Rendered
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "subject", data); err != nil {
		return Rendered{}, err
	}
	out.Subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := t.ExecuteTemplate(&buf, "text", data); err != nil {
		return Rendered{}, err
	}
	out.Text = buf.String()

	buf.Reset()
	if err := r.html[m.Kind].ExecuteTemplate(&buf, "html", data); err != nil {
		return Rendered{}, err
	}
	out.HTML = buf.String()
	return out, nil
}

func (r *Renderer) format(t time.Time) string {
	return t.In(r.location).Format("2006-01-02 15:04 MST")
}
