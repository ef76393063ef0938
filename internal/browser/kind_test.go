package browser

import (
	"context"
	"testing"
)

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", k.String(), err)
		}
		if got != k {
			t.Fatalf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if _, err := ParseKind("netscape"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestKindsOrderStable(t *testing.T) {
	ks := Kinds()
	if ks[0] != KindChromium || ks[1] != KindFirefox || ks[2] != KindWebkit {
		t.Fatalf("unexpected enumeration order: %v", ks)
	}
}

func TestDriverRequiresCommand(t *testing.T) {
	if _, err := NewDriver(KindChromium, nil); err == nil {
		t.Fatal("expected error for empty driver command")
	}
}

func TestDriverLaunchFailureSurfaces(t *testing.T) {
	d, err := NewDriver(KindFirefox, []string{"/nonexistent/botswarm-driver"})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, err := d.Launch(context.Background()); err == nil {
		t.Fatal("expected launch failure for missing driver binary")
	}
}
