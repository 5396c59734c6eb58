package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"effectifs/internal/config"
	"effectifs/internal/labels"
)

const rawCSV = "\uFEFFannee;patho_niv1;patho_niv2;patho_niv3;top;cla_age_5;sexe;region;dept;Ntop;Npop;prev;Niveau prioritaire;libelle_classe_age;libelle_sexe;tri\n" +
	"2023;Cancers;;;TOP_C;40-44;1;11;75;30;1000;3.0;1;de 40 a 44 ans;hommes;1\n" +
	"2023;Diabète;Diabète;;TOP_D;45-49;1;;01;5;500;1.0;2;de 45 a 49 ans;hommes;2\n" +
	"2022;Maladies cardioneurovasculaires;;;TOP_M;45-49;2;84;01;7;700;1.0;3;de 45 a 49 ans;femmes;3\n" +
	"2022;Pas de pathologie repérée, traitement, maternité, hospitalisation ou traitement antalgique ou anti-inflammatoire;;;TOP_P;45-49;2;84;01;9;700;1.3;3;de 45 a 49 ans;femmes;4\n"

const geoJSON = `[{"num_dep": 1, "dep_name": "Ain", "region_name": "Auvergne-Rhône-Alpes"}]`

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// localConfig writes source files and a config reading them from disk.
func localConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "effectifs.csv"), rawCSV)
	writeFile(t, filepath.Join(src, "geo.json"), geoJSON)

	d := config.Default()
	d.Paths = config.Paths{
		RawCSV:   filepath.Join(dir, "data", "raw", "effectifs.csv"),
		CleanCSV: filepath.Join(dir, "data", "clean", "csv_clean.csv"),
		GeoJSON:  filepath.Join(dir, "data", "geo", "departements-regions.json"),
	}
	d.Sources = config.Sources{
		CSVURL: filepath.Join(src, "effectifs.csv"),
		GeoURL: filepath.Join(src, "geo.json"),
	}
	d.Storage.DSN = filepath.Join(dir, "data", "effectifs.sqlite3")

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "dashboard.json")
	writeFile(t, p, string(b))
	return p
}

func TestValidateConfig(t *testing.T) {
	out, _, err := execute(t, "validate-config")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid: (defaults)") {
		t.Fatalf("out = %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, bad, `{"storage": {"kind": "oracle"}}`)
	_, errOut, err := execute(t, "--config", bad, "validate-config")
	if !errors.Is(err, errInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(errOut, "error: storage.kind:") {
		t.Fatalf("stderr = %q", errOut)
	}

	unknown := filepath.Join(t.TempDir(), "unknown.json")
	writeFile(t, unknown, `{"storage": {"engine": "sqlite"}}`)
	if _, _, err := execute(t, "--config", unknown, "validate-config"); err == nil || errors.Is(err, errInvalidConfig) {
		t.Fatalf("unknown field err = %v", err)
	}
}

func TestValidateConfig_Show(t *testing.T) {
	out, _, err := execute(t, "validate-config", "--show", "--metrics-backend", "datadog")
	if err != nil {
		t.Fatalf("validate-config: %v", err)
	}
	var d config.Dashboard
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if d.Metrics.Backend != "datadog" || d.Storage.Table != config.DefaultTable {
		t.Fatalf("resolved = %+v", d)
	}
}

func TestLoad_Precedence(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "c.json")
	writeFile(t, p, `{"storage": {"table": "from_file"}, "metrics": {"backend": "datadog", "pushgateway_url": "http://file:9091"}}`)
	env := map[string]string{
		"EFFECTIFS_TABLE":           "from_env",
		"EFFECTIFS_PUSHGATEWAY_URL": "http://env:9091",
	}
	o := &rootOptions{
		configPath:     p,
		metricsBackend: "none",
		getenv:         func(k string) string { return env[k] },
	}
	d, err := o.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Storage.Table != "from_env" || d.Metrics.Backend != "none" || d.Metrics.PushgatewayURL != "http://env:9091" {
		t.Fatalf("resolved = %+v", d)
	}

	o.pushgatewayURL = "http://flag:9091"
	if d, _ = o.load(); d.Metrics.PushgatewayURL != "http://flag:9091" {
		t.Fatalf("flag did not win: %q", d.Metrics.PushgatewayURL)
	}
}

func TestSetupMetrics(t *testing.T) {
	d := config.Default()

	d.Metrics.Backend = "none"
	if h, cleanup := setupMetrics(d); h != nil {
		t.Fatalf("none returned a handler")
	} else {
		cleanup()
	}

	d.Metrics.Backend = "prometheus"
	h, cleanup := setupMetrics(d)
	defer cleanup()
	if h == nil {
		t.Fatalf("prometheus returned no handler")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("scrape status = %d", rr.Code)
	}
}

func TestPrepareThenLabels(t *testing.T) {
	cfg := localConfig(t)

	out, _, err := execute(t, "--config", cfg, "prepare")
	if err != nil {
		t.Fatalf("prepare: %v\n%s", err, out)
	}
	for _, want := range []string{"[STEP] Initialisation des donnees", "[OK] Initialisation terminee."} {
		if !strings.Contains(out, want) {
			t.Fatalf("prepare output lacks %q:\n%s", want, out)
		}
	}

	out, _, err = execute(t, "--config", cfg, "prepare", "--if-needed")
	if err != nil || !strings.Contains(out, "[OK] Donnees deja initialisees.") {
		t.Fatalf("prepare --if-needed = %q, %v", out, err)
	}

	out, _, err = execute(t, "--config", cfg, "verify-labels", "--json")
	if err != nil {
		t.Fatalf("verify-labels: %v", err)
	}
	var infos []labels.LabelInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	got := make([]string, 0, len(infos))
	for _, i := range infos {
		got = append(got, i.Label)
	}
	if strings.Join(got, "|") != "Aucune pathologie repérée|Cancers|Maladies cardiovasculaires" {
		t.Fatalf("labels = %q", got)
	}

	out, _, err = execute(t, "--config", cfg, "verify-labels")
	if err != nil || !strings.Contains(out, "[INFO] 0 label(s) long(s) sur 3.") {
		t.Fatalf("verify-labels = %q, %v", out, err)
	}

	out, _, err = execute(t, "--config", cfg, "clean-labels", "--dry-run", "--json")
	if err != nil {
		t.Fatalf("clean-labels: %v", err)
	}
	var st labels.Stats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if st.Scanned != 3 || st.Changed != 0 || len(st.Mapping) != 0 {
		t.Fatalf("dry-run stats = %+v", st)
	}

	out, _, err = execute(t, "--config", cfg, "clean-labels")
	if err != nil || !strings.Contains(out, "[INFO] 3 pathologies analysees, 0 modifiees, 0 lignes affectees.") {
		t.Fatalf("clean-labels = %q, %v", out, err)
	}
	out, _, _ = execute(t, "--config", cfg, "verify-labels")
	if !strings.Contains(out, "[OK] Maladies cardiovasculaires (") {
		t.Fatalf("verify after clean = %q", out)
	}
}

func TestPrepare_InvalidConfigStopsEarly(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, bad, `{"load": {"batch_size": 0}}`)
	if _, _, err := execute(t, "--config", bad, "prepare"); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
}
