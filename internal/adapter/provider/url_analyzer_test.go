package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const landingPage = `<html><head>
<script src="https://cdn.example.net/static/app.js"></script>
<link href="https://fonts.googleapis.com/css?family=Roboto" rel="stylesheet">
</head><body>
<a href="http://payload.example.org/drop.exe">download</a>
<a href="http://payload.example.org/drop.exe">again</a>
<p>Mirror at https://mirror.example.org/files.</p>
</body></html>`

func TestURLAnalyzerFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla/5.0") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, landingPage)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	a := NewURLAnalyzer(server.Client())
	outcome := a.AnalyzeURL(context.Background(), server.URL+"/start")

	expected := domain.Succeeded(URLAnalysisReport{
		FinalURL:      server.URL + "/landing",
		FinalDomain:   "127.0.0.1",
		HasRedirects:  true,
		RedirectCount: 2,
		RedirectChain: []RedirectHop{
			{URL: server.URL + "/start", StatusCode: http.StatusFound},
			{URL: server.URL + "/middle", StatusCode: http.StatusMovedPermanently},
		},
		ExtractedURLsCount: 2,
		ExtractedURLs: []string{
			"http://payload.example.org/drop.exe",
			"https://mirror.example.org/files",
		},
		StatusCode: http.StatusOK,
	})
	if diff := cmp.Diff(expected, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestURLAnalyzerWithoutRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "nothing to see")
	}))
	defer server.Close()

	outcome := NewURLAnalyzer(server.Client()).AnalyzeURL(context.Background(), server.URL)
	if !outcome.Success {
		t.Fatalf("analysis failed: %s", outcome.Error)
	}

	report := outcome.Data.(URLAnalysisReport)
	if report.HasRedirects || report.RedirectCount != 0 || report.RedirectChain == nil {
		t.Errorf("expected an empty, non-nil chain: %+v", report)
	}
	if report.ExtractedURLs == nil || report.ExtractedURLsCount != 0 {
		t.Errorf("expected an empty, non-nil URL list: %+v", report)
	}
}

func TestURLAnalyzerFailures(t *testing.T) {
	t.Run("Non-200 final status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusGone)
		}))
		defer server.Close()

		outcome := NewURLAnalyzer(server.Client()).AnalyzeURL(context.Background(), server.URL)
		if diff := cmp.Diff(domain.StatusFailure(http.StatusGone), outcome); diff != "" {
			t.Errorf("outcome mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Redirect loop", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, r.URL.Path, http.StatusFound)
		}))
		defer server.Close()

		outcome := NewURLAnalyzer(server.Client()).AnalyzeURL(context.Background(), server.URL+"/loop")
		if outcome.Success || !strings.Contains(outcome.Error, "stopped after 10 redirects") {
			t.Errorf("outcome = %+v", outcome)
		}
	})
}

func TestExtractURLsCapsAndFilters(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "see http://host%d.example.com/page and http://host%d.example.com/style.css\n", i, i)
	}

	urls := extractURLs(b.String())
	if len(urls) != maxExtractedURLs {
		t.Fatalf("got %d urls, want %d", len(urls), maxExtractedURLs)
	}
	for _, u := range urls {
		if strings.HasSuffix(u, ".css") {
			t.Errorf("noisy url kept: %s", u)
		}
	}
	if urls[0] != "http://host0.example.com/page" {
		t.Errorf("first url = %s", urls[0])
	}
}

func TestRegistrableHost(t *testing.T) {
	tests := map[string]string{
		"www.login.example.co.uk": "example.co.uk",
		"example.com":             "example.com",
		"10.0.0.1":                "10.0.0.1",
	}
	for host, expected := range tests {
		if got := registrableHost(host); got != expected {
			t.Errorf("registrableHost(%q) = %q, want %q", host, got, expected)
		}
	}
}
