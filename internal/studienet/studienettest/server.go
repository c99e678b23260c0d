// Package studienettest serves a fake studienet portal over httptest for tests: a login
// form, the all classes table, one materials page per class and the material files.
package studienettest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"studienet-scraper/internal/studienet"
)

const (
	SessionCookie = "FedAuth"
	SessionValue  = "authenticated"
	HomeCookie    = "NSC_TMAS"
	HomeValue     = "home"
)

// Material is one row of a materials group.
type Material struct {
	// path the material is served at, may carry a query
	Path string
	Body []byte
	// 0 means 200
	Status int
	// the connection is dropped instead of answering
	Broken bool
	// the row is rendered without the material cell
	MissingCell bool
}

type Class struct {
	Name string
	// class page path, the materials page is Path + "/Session Material"
	Path string
	// rendered without an anchor
	NoAnchor bool
	Groups   [][]Material
}

type Server struct {
	*httptest.Server

	Username string
	Password string
	Classes  []Class
	// delay before answering the login post
	LoginDelay time.Duration

	mutex        sync.Mutex
	logins       int
	cookieHeader map[string]string
	fetched      []string
}

func NewServer(t testing.TB, username, password string, classes []Class) *Server {
	s := &Server{
		Username:     username,
		Password:     password,
		Classes:      classes,
		cookieHeader: map[string]string{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)
	return s
}

// Portal is the default portal with its urls pointed at this server.
func (s *Server) Portal() studienet.Portal {
	portal := studienet.DefaultPortal()
	portal.HomeUrl = s.URL + "/"
	portal.AllClassesUrl = s.URL + "/Pages/All_classes.aspx"
	return portal
}

func (s *Server) Logins() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.logins
}

// CookieHeader is the cookie header the material at `path` was requested with.
func (s *Server) CookieHeader(path string) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.cookieHeader[path]
}

// Fetched lists the material paths requested, in order.
func (s *Server) Fetched() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string{}, s.fetched...)
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(SessionCookie)
	return err == nil && c.Value == SessionValue
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/":
		http.SetCookie(w, &http.Cookie{Name: HomeCookie, Value: HomeValue, Path: "/"})
		if s.authenticated(r) {
			fmt.Fprint(w, `<html><body><h1>studienet</h1></body></html>`)
			return
		}
		fmt.Fprint(w, loginForm)
	case path == "/cgi/login":
		s.login(w, r)
	case path == "/Pages/All_classes.aspx":
		if !s.authenticated(r) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		fmt.Fprint(w, s.classTable())
	case strings.HasPrefix(path, "/files/"):
		s.material(w, r)
	default:
		for _, c := range s.Classes {
			if path == c.Path+"/Session Material" {
				fmt.Fprint(w, materialsPage(c))
				return
			}
		}
		http.NotFound(w, r)
	}
}

const loginForm = `<html><body>
<form method="post" action="/cgi/login">
	<input id="login" name="login" type="text">
	<input id="passwd" name="passwd" type="password">
	<input id="nsg-x1-logon-button" type="submit" name="logon" value="Log On">
</form>
</body></html>`

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if s.LoginDelay > 0 {
		time.Sleep(s.LoginDelay)
	}
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	s.logins++
	s.mutex.Unlock()

	if r.PostForm.Get("login") != s.Username || r.PostForm.Get("passwd") != s.Password {
		fmt.Fprint(w, loginForm)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: SessionValue, Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) classTable() string {
	var out strings.Builder
	out.WriteString(`<html><body><table id="ctl00_ctl41_g_7e08e0cd_4020_4b4b_b9bd_1eb7c01e95f6_ctl00_gv1"><tbody>`)
	out.WriteString(`<tr><th scope="col">Class</th></tr>`)
	for _, c := range s.Classes {
		if c.NoAnchor {
			fmt.Fprintf(&out, `<tr><td>%s</td></tr>`, html.EscapeString(c.Name))
			continue
		}
		fmt.Fprintf(
			&out, `<tr><td><a href="%s">%s</a></td></tr>`,
			html.EscapeString(c.Path), html.EscapeString(c.Name),
		)
	}
	out.WriteString(`</tbody></table></body></html>`)
	return out.String()
}

func materialsPage(c Class) string {
	var out strings.Builder
	out.WriteString(`<html><body><div id="scriptWPQ2"><table>`)
	for gi, group := range c.Groups {
		fmt.Fprintf(&out, `<tbody id="titl1-%d_"><tr><td>Group %d</td></tr></tbody>`, gi, gi)
		fmt.Fprintf(&out, `<tbody id="tbod1-%d__">`, gi)
		for _, m := range group {
			if m.MissingCell {
				out.WriteString(`<tr><td class="ms-vb2">no link here</td></tr>`)
				continue
			}
			fmt.Fprintf(
				&out,
				`<tr><td class="ms-vb2"><div class="ms-vb-title"><a href="%s">material</a></div></td></tr>`,
				html.EscapeString(m.Path),
			)
		}
		out.WriteString(`</tbody>`)
	}
	out.WriteString(`</table></div></body></html>`)
	return out.String()
}

func (s *Server) material(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	s.cookieHeader[r.URL.Path] = r.Header.Get("cookie")
	s.fetched = append(s.fetched, r.URL.Path)
	s.mutex.Unlock()

	for _, c := range s.Classes {
		for _, group := range c.Groups {
			for _, m := range group {
				if strings.SplitN(m.Path, "?", 2)[0] != r.URL.Path {
					continue
				}
				if m.Broken {
					hijacker, ok := w.(http.Hijacker)
					if !ok {
						http.Error(w, "cannot hijack", http.StatusInternalServerError)
						return
					}
					conn, _, err := hijacker.Hijack()
					if err == nil {
						conn.Close()
					}
					return
				}
				if m.Status != 0 {
					w.WriteHeader(m.Status)
				}
				w.Write(m.Body)
				return
			}
		}
	}
	http.NotFound(w, r)
}
