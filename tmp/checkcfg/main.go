package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/migrate"
	"taskline/internal/server"
)

func main() {
	workspace := "/tmp/taskline-check3"
	_ = os.RemoveAll(workspace)
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	yml := `project:
  name: check

server:
  addr: ":8787"
  base_path: /api/v1

auth:
  require: false
  jwt_secret: scratch-secret

recurrence:
  default_count: 4
`
	if err := os.WriteFile(config.Path(workspace), []byte(yml), 0o644); err != nil {
		panic(err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		panic(err)
	}
	fmt.Printf("loaded name=%s default_count=%d require=%v\n", cfg.Project.Name, cfg.Recurrence.DefaultCount, cfg.Auth.Require)

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	e := engine.New(conn, cfg)
	h, err := server.New(server.Config{Engine: e, BasePath: cfg.Server.BasePath, Auth: server.AuthConfig{
		Require:   cfg.Auth.Require,
		JWTSecret: cfg.Auth.JWTSecret,
	}})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	status, created := post(ts.URL+"/api/v1/recurring", map[string]any{
		"title":     "config check",
		"frequency": "daily",
	})
	fmt.Printf("create recurring: status=%d resp=%v\n", status, created)
	pattern, _ := created["pattern"].(map[string]any)
	if pattern == nil {
		panic("no pattern in response")
	}
	pid := int(pattern["id"].(float64))

	// no count param, so the config default decides how many come back
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/v1/recurring/%d/generate", ts.URL, pid), nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var instances []map[string]any
	_ = json.NewDecoder(res.Body).Decode(&instances)
	fmt.Printf("generate: status=%d instances=%d want=%d\n", res.StatusCode, len(instances), cfg.Recurrence.DefaultCount)
}

func post(url string, body map[string]any) (int, map[string]any) {
	b, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp map[string]any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	return res.StatusCode, resp
}
