package enrollment

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/identity"
	"github.com/kozaktomas/gatekeeper/internal/matcher"
	"github.com/kozaktomas/gatekeeper/internal/mock"
)

var testFrame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}

func newTestEnroller(t *testing.T) (*Enroller, *identity.Store, *mock.MockSource, *mock.MockMatcher) {
	t.Helper()
	dir := t.TempDir()
	store := identity.NewStore(filepath.Join(dir, "face_db.json"), filepath.Join(dir, "registered_faces"), 3)
	source := mock.NewMockSource(testFrame)
	m := mock.NewMockMatcher(identity.Descriptor{0.1, 0.2, 0.3})
	return New(source, m, store), store, source, m
}

func TestEnroll_StoresDescriptorAndImage(t *testing.T) {
	e, store, _, _ := newTestEnroller(t)

	ident, err := e.Enroll(context.Background(), "  Alice ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.ID != "id_1" || ident.Name != "Alice" {
		t.Errorf("unexpected identity %+v", ident)
	}

	got, found, err := store.Find("alice")
	if err != nil || !found {
		t.Fatalf("expected Alice in store, found=%v err=%v", found, err)
	}
	if len(got.Descriptor) != 3 {
		t.Errorf("unexpected descriptor %v", got.Descriptor)
	}
	image, err := os.ReadFile(store.ImagePath("Alice"))
	if err != nil {
		t.Fatalf("reference image not written: %v", err)
	}
	if !bytes.Equal(image, testFrame) {
		t.Error("reference image differs from the captured frame")
	}
}

func TestEnroll_DuplicateCheckedBeforeCapture(t *testing.T) {
	e, _, source, _ := newTestEnroller(t)
	if _, err := e.Enroll(context.Background(), "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := e.Enroll(context.Background(), "ALICE")
	if !errors.Is(err, identity.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if source.CaptureCount() != 1 {
		t.Errorf("expected no capture for a duplicate name, got %d captures", source.CaptureCount())
	}
}

func TestEnroll_Failures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		setup   func(*mock.MockSource, *mock.MockMatcher)
		wantErr error
	}{
		{
			name:    "empty name",
			input:   "   ",
			wantErr: identity.ErrEmptyName,
		},
		{
			name:    "camera unavailable",
			input:   "Bob",
			setup:   func(s *mock.MockSource, m *mock.MockMatcher) { s.CaptureError = camera.ErrDeviceUnavailable },
			wantErr: camera.ErrDeviceUnavailable,
		},
		{
			name:    "no face",
			input:   "Bob",
			setup:   func(s *mock.MockSource, m *mock.MockMatcher) { m.Descriptors = nil },
			wantErr: matcher.ErrAmbiguousFace,
		},
		{
			name:  "two faces",
			input: "Bob",
			setup: func(s *mock.MockSource, m *mock.MockMatcher) {
				m.Descriptors = []identity.Descriptor{{0.1, 0.2, 0.3}, {0.3, 0.2, 0.1}}
			},
			wantErr: matcher.ErrAmbiguousFace,
		},
		{
			name:    "wrong descriptor length",
			input:   "Bob",
			setup:   func(s *mock.MockSource, m *mock.MockMatcher) { m.Descriptors = []identity.Descriptor{{0.1}} },
			wantErr: identity.ErrInvalidDescriptor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store, source, m := newTestEnroller(t)
			if tt.setup != nil {
				tt.setup(source, m)
			}

			_, err := e.Enroll(context.Background(), tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			identities, err := store.List()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(identities) != 0 {
				t.Errorf("failed enrollment must not change the store, got %v", identities)
			}
		})
	}
}

func TestEnroll_MatcherErrorIsWrapped(t *testing.T) {
	e, _, _, m := newTestEnroller(t)
	m.ExtractError = errors.New("embedding server unavailable")

	_, err := e.Enroll(context.Background(), "Bob")
	if err == nil || !strings.Contains(err.Error(), "embedding server unavailable") {
		t.Errorf("expected matcher error, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	e, store, _, _ := newTestEnroller(t)
	if _, err := e.Enroll(context.Background(), "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	removed, err := e.Remove("alice")
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	if _, err := os.Stat(store.ImagePath("Alice")); !os.IsNotExist(err) {
		t.Error("expected reference image to be deleted")
	}

	removed, err = e.Remove("Alice")
	if err != nil || removed {
		t.Errorf("expected nothing removed, got removed=%v err=%v", removed, err)
	}

	if _, err := e.Remove(" "); !errors.Is(err, identity.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{identity.ErrEmptyName, "Name cannot be empty."},
		{identity.ErrDuplicateIdentity, "A person with this name is already registered."},
		{matcher.ErrAmbiguousFace, "Exactly one face must be visible."},
		{camera.ErrDeviceUnavailable, "Camera not accessible."},
		{camera.ErrCaptureFailure, "Failed to capture image."},
		{errors.New("other"), "other"},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMenu_Session(t *testing.T) {
	e, _, _, _ := newTestEnroller(t)
	input := strings.Join([]string{
		"3",     // view empty
		"1",     // register
		"Alice", //
		"1",     // register duplicate
		"alice", //
		"3",     // view
		"9",     // invalid
		"2",     // delete
		"ALICE", //
		"2",     // delete unknown
		"Bob",   //
		"4",     // exit
	}, "\n") + "\n"

	prompts := 0
	var out bytes.Buffer
	menu := NewMenu(e, strings.NewReader(input), &out, func() { prompts++ })
	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"No faces registered yet.",
		"Alice registered successfully (id_1).",
		"A person with this name is already registered.",
		" - Alice",
		"Invalid choice. Please try again.",
		"ALICE deleted successfully.",
		"Name not found in database.",
		"Exiting.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if prompts != 2 {
		t.Errorf("expected the capture hook before each registration, got %d", prompts)
	}
}

func TestMenu_EndOfInput(t *testing.T) {
	e, _, _, _ := newTestEnroller(t)
	var out bytes.Buffer
	if err := NewMenu(e, strings.NewReader("3\n"), &out, nil).Run(context.Background()); err != nil {
		t.Errorf("expected clean stop at end of input, got %v", err)
	}
}
