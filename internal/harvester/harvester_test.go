package harvester

import (
	"sync"
	"testing"
)

func TestScanTokenFromHTML_DataAuthToken(t *testing.T) {
	t.Parallel()

	html := `<html><body><div data-auth-token="Bearer abc123"></div></body></html>`
	if got := scanTokenFromHTML(html); got != "Bearer abc123" {
		t.Fatalf("scanTokenFromHTML = %q, want Bearer abc123", got)
	}
}

func TestScanTokenFromHTML_FallsBackToDataToken(t *testing.T) {
	t.Parallel()

	html := `<html><body><div data-token="xyz987"></div></body></html>`
	if got := scanTokenFromHTML(html); got != "xyz987" {
		t.Fatalf("scanTokenFromHTML = %q, want xyz987", got)
	}
}

func TestScanTokenFromHTML_NoTokenPresent(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="widget"></div></body></html>`
	if got := scanTokenFromHTML(html); got != "" {
		t.Fatalf("expected empty string when no token attribute present, got %q", got)
	}
}

func TestTokenBox_SetIfEmptyKeepsFirstValue(t *testing.T) {
	t.Parallel()

	box := &tokenBox{}
	box.setIfEmpty("first")
	box.setIfEmpty("second")

	if got := box.get(); got != "first" {
		t.Fatalf("tokenBox.get() = %q, want first", got)
	}
}

func TestTokenBox_ConcurrentSetIfEmpty(t *testing.T) {
	t.Parallel()

	box := &tokenBox{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			box.setIfEmpty("concurrent")
		}()
	}
	wg.Wait()

	if got := box.get(); got != "concurrent" {
		t.Fatalf("tokenBox.get() = %q, want concurrent", got)
	}
}
