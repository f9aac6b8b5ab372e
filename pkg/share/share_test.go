package share

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestBuildOpenRoundTrip(t *testing.T) {
	data := []byte(`{"name":"db-prod","host":"10.0.0.5"}`)
	password := []byte("share-pass")

	s, err := Build(data, password, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	opened, reissued, err := Open(s, password)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened.Data, data) {
		t.Errorf("data mismatch: got %q, want %q", opened.Data, data)
	}
	if !opened.Protected {
		t.Error("share with password should report protected")
	}
	if opened.ViewCount != 1 {
		t.Errorf("view count after first open = %d, want 1", opened.ViewCount)
	}
	if reissued == "" || reissued == s {
		t.Error("Open should reissue a distinct transport string")
	}
}

func TestOpenWrongPassword(t *testing.T) {
	s, err := Build([]byte("secret"), []byte("correct"), Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, _, err := Open(s, []byte("wrong")); !errors.Is(err, ErrInvalidShare) {
		t.Errorf("wrong password: got %v, want ErrInvalidShare", err)
	}
}

func TestOpenUnprotected(t *testing.T) {
	s, err := Build([]byte("public note"), nil, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	protected, err := Inspect(s)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if protected {
		t.Error("share without password should not report protected")
	}

	opened, _, err := Open(s, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(opened.Data) != "public note" {
		t.Errorf("unexpected data: %q", opened.Data)
	}
}

func TestOpenMalformed(t *testing.T) {
	cases := map[string]string{
		"not base64":    "!!!not-base64!!!",
		"not json":      "bm90IGpzb24=",
		"empty object":  "e30=",
		"empty string":  "",
		"random base64": "c29tZXRoaW5nIGVsc2UgZW50aXJlbHk=",
	}
	for name, s := range cases {
		if _, _, err := Open(s, []byte("pw")); !errors.Is(err, ErrInvalidShare) {
			t.Errorf("%s: got %v, want ErrInvalidShare", name, err)
		}
	}
}

func TestExpiry(t *testing.T) {
	base := time.Now()
	now = func() time.Time { return base }
	defer func() { now = time.Now }()

	s, err := Build([]byte("ephemeral"), []byte("pw"), Options{TTL: time.Hour})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Still inside the window.
	now = func() time.Time { return base.Add(59 * time.Minute) }
	if _, _, err := Open(s, []byte("pw")); err != nil {
		t.Fatalf("open inside TTL failed: %v", err)
	}

	// Past the window.
	now = func() time.Time { return base.Add(61 * time.Minute) }
	if _, _, err := Open(s, []byte("pw")); !errors.Is(err, ErrShareExpired) {
		t.Errorf("expired share: got %v, want ErrShareExpired", err)
	}
}

func TestNoExpiryNeverExpires(t *testing.T) {
	base := time.Now()
	now = func() time.Time { return base }
	defer func() { now = time.Now }()

	s, err := Build([]byte("forever"), []byte("pw"), Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	now = func() time.Time { return base.AddDate(10, 0, 0) }
	opened, _, err := Open(s, []byte("pw"))
	if err != nil {
		t.Fatalf("open without TTL failed: %v", err)
	}
	if opened.ExpiresAt != nil {
		t.Error("share without TTL should have nil ExpiresAt")
	}
}

func TestViewLimit(t *testing.T) {
	s, err := Build([]byte("twice only"), []byte("pw"), Options{MaxViews: 2})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for i := 1; i <= 2; i++ {
		opened, reissued, err := Open(s, []byte("pw"))
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		if opened.ViewCount != i {
			t.Errorf("open %d: view count = %d, want %d", i, opened.ViewCount, i)
		}
		s = reissued
	}

	if _, _, err := Open(s, []byte("pw")); !errors.Is(err, ErrViewLimitReached) {
		t.Errorf("exhausted share: got %v, want ErrViewLimitReached", err)
	}
}

func TestViewLimitAdvisory(t *testing.T) {
	original, err := Build([]byte("keep the original"), []byte("pw"), Options{MaxViews: 1})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, _, err := Open(original, []byte("pw")); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	// A holder of the original string can open it again: the count only
	// advances in the reissued string.
	if _, _, err := Open(original, []byte("pw")); err != nil {
		t.Fatalf("re-open of original failed: %v", err)
	}
}

func TestUnlimitedViews(t *testing.T) {
	s, err := Build([]byte("open bar"), []byte("pw"), Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		opened, reissued, err := Open(s, []byte("pw"))
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		if opened.MaxViews != 0 {
			t.Errorf("MaxViews = %d, want 0", opened.MaxViews)
		}
		s = reissued
	}
}
