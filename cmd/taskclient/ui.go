package main

import (
	"context"
	"errors"
	"flag"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
)

var pages = template.Must(template.New("layout").Parse(`
{{define "login"}}<!doctype html>
<title>Sign in</title>
{{if .Notice}}<p role="status">{{.Notice}}</p>{{end}}
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}">
  <input type="hidden" name="next" value="{{.Next}}">
  <label>Email <input name="email" type="email" value="{{.Email}}"></label>
  <label>Password <input name="password" type="password"></label>
  <button>Sign in</button>
</form>
{{end}}
{{define "tasks"}}<!doctype html>
<title>Tasks</title>
<p>Signed in as {{.Identity.Name}} &lt;{{.Identity.Email}}&gt;</p>
<form method="post" action="/logout"><button>Sign out</button></form>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<ul>{{range .Tasks}}<li>{{if .Done}}<s>{{.Title}}</s>{{else}}{{.Title}}{{end}}</li>{{else}}<li>No tasks yet.</li>{{end}}</ul>
<form method="post" action="/tasks">
  <input name="title" placeholder="New task">
  <button>Add</button>
</form>
{{end}}
`))

type task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type loginPage struct {
	Action string
	Next   string
	Email  string
	Error  string
	Notice string
}

type tasksPage struct {
	Identity *goSession.Identity
	Tasks    []task
	Error    string
}

type ui struct {
	client *goSession.Client
	logger *slog.Logger
	// notice is shown once on the entry page after an invalidation.
	notice atomic.Pointer[string]
}

func runUI(ctx context.Context, c *goSession.Client, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	listen := fs.String("listen", "127.0.0.1:8081", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u := &ui{client: c, logger: logger}
	stop := guard.Follow(c, guard.NavigatorFunc(u.navigate))
	defer stop()

	// The guard renders the loading view until this resolves.
	go func() {
		if err := c.Initialize(ctx); err != nil {
			logger.Warn("session rehydration", slog.Any("error", err))
		}
	}()

	entry := c.EntryPath()
	protect := guard.Require(c, entry)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+entry, u.loginForm)
	mux.HandleFunc("POST "+entry, u.login)
	mux.HandleFunc("POST /logout", u.logout)
	mux.Handle("GET /{$}", protect(http.HandlerFunc(u.listTasks)))
	mux.Handle("POST /tasks", protect(http.HandlerFunc(u.createTask)))
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(c).Handler())

	view, err := newOTelView(c)
	if err != nil {
		return err
	}
	defer view.Close()
	mux.Handle("GET /metrics/otel", view)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("task client ui listening", slog.String("addr", *listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (u *ui) navigate(path string) {
	msg := "Your session ended. Sign in again to continue."
	u.notice.Store(&msg)
	u.logger.Info("session invalidated", slog.String("entry", path))
}

func (u *ui) loginForm(w http.ResponseWriter, r *http.Request) {
	if u.client.Session().Authenticated() {
		http.Redirect(w, r, safeNext(r.URL.Query().Get(guard.NextParam)), http.StatusSeeOther)
		return
	}

	page := loginPage{
		Action: u.client.EntryPath(),
		Next:   r.URL.Query().Get(guard.NextParam),
	}
	if msg := u.notice.Swap(nil); msg != nil {
		page.Notice = *msg
	}
	u.render(w, http.StatusOK, "login", page)
}

func (u *ui) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")
	next := r.PostFormValue("next")

	if err := u.client.Login(r.Context(), email, r.PostFormValue("password")); err != nil {
		u.render(w, http.StatusUnauthorized, "login", loginPage{
			Action: u.client.EntryPath(),
			Next:   next,
			Email:  email,
			Error:  describe(err).Error(),
		})
		return
	}
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

func (u *ui) logout(w http.ResponseWriter, r *http.Request) {
	u.client.Logout(r.Context())
	http.Redirect(w, r, u.client.EntryPath(), http.StatusSeeOther)
}

func (u *ui) listTasks(w http.ResponseWriter, r *http.Request) {
	id, _ := guard.IdentityFromContext(r.Context())
	page := tasksPage{Identity: id}

	if err := u.client.Do(r.Context(), http.MethodGet, "/tasks", nil, &page.Tasks); err != nil {
		if errors.Is(err, goSession.ErrCredentialRejected) {
			http.Redirect(w, r, u.client.EntryPath(), http.StatusSeeOther)
			return
		}
		page.Error = describe(err).Error()
	}
	u.render(w, http.StatusOK, "tasks", page)
}

func (u *ui) createTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	in := struct {
		Title string `json:"title"`
	}{Title: strings.TrimSpace(r.PostFormValue("title"))}

	err := u.client.Do(r.Context(), http.MethodPost, "/tasks", in, nil)
	switch {
	case errors.Is(err, goSession.ErrCredentialRejected):
		http.Redirect(w, r, u.client.EntryPath(), http.StatusSeeOther)
	case err != nil:
		id, _ := guard.IdentityFromContext(r.Context())
		u.render(w, http.StatusBadRequest, "tasks", tasksPage{Identity: id, Error: describe(err).Error()})
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (u *ui) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		u.logger.Error("render", slog.String("page", name), slog.Any("error", err))
	}
}

// safeNext keeps post-login redirects on this host.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
