// Package mock provides in-memory implementations of the gate collaborators
// for testing.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/escalation"
	"github.com/kozaktomas/gatekeeper/internal/identity"
	"github.com/kozaktomas/gatekeeper/internal/matcher"
	"github.com/kozaktomas/gatekeeper/internal/motion"
)

// PollResult is one scripted answer of MockChannel.Poll.
type PollResult struct {
	Message motion.Message
	Err     error
}

// Token builds a scripted line as the serial channel would decode it.
func Token(raw string) PollResult {
	return PollResult{Message: motion.ParseLine([]byte(raw))}
}

// MockChannel is a mock implementation of motion.Channel. Scripted results are
// returned one per Poll; once the script runs out Poll reports that nothing
// has arrived.
type MockChannel struct {
	mu     sync.Mutex
	script []PollResult

	Polls  int
	Resets int
	Closed bool

	// Error injection
	PollError  error // every Poll fails while set
	ResetError error
	CloseError error
}

// NewMockChannel creates a channel that yields the given results in order.
func NewMockChannel(script ...PollResult) *MockChannel {
	return &MockChannel{script: script}
}

// Poll returns the next scripted result.
func (m *MockChannel) Poll() (motion.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Polls++
	if m.PollError != nil {
		return motion.Message{}, false, m.PollError
	}
	if len(m.script) == 0 {
		return motion.Message{}, false, nil
	}
	next := m.script[0]
	m.script = m.script[1:]
	if next.Err != nil {
		return motion.Message{}, false, next.Err
	}
	return next.Message, true, nil
}

// Push appends results to the script.
func (m *MockChannel) Push(results ...PollResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, results...)
}

// Remaining returns how many scripted results were not consumed.
func (m *MockChannel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// Reset counts the call and drops the rest of the script.
func (m *MockChannel) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resets++
	if m.ResetError != nil {
		return m.ResetError
	}
	m.script = nil
	return nil
}

// Close marks the channel closed.
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

// MockSource is a mock implementation of camera.Source.
type MockSource struct {
	mu       sync.Mutex
	Frame    []byte
	Captures int

	// Error injection
	CaptureError error
}

// NewMockSource creates a source that always returns data as the frame.
func NewMockSource(data []byte) *MockSource {
	return &MockSource{Frame: data}
}

// Capture returns the configured frame.
func (m *MockSource) Capture(ctx context.Context) (camera.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Captures++
	if m.CaptureError != nil {
		return camera.Frame{}, m.CaptureError
	}
	if err := ctx.Err(); err != nil {
		return camera.Frame{}, err
	}
	return camera.Frame{Data: m.Frame, CapturedAt: time.Now(), Device: "mock"}, nil
}

// CaptureCount returns the number of Capture calls.
func (m *MockSource) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Captures
}

// MockMatcher is a mock implementation of matcher.Matcher that returns fixed
// descriptors and compares them with Euclidean distance.
type MockMatcher struct {
	mu          sync.Mutex
	Descriptors []identity.Descriptor

	ExtractCalls  int
	DistanceCalls int
	LastImage     []byte

	// Error injection
	ExtractError error
}

// NewMockMatcher creates a matcher that finds the given descriptors in any image.
func NewMockMatcher(descriptors ...identity.Descriptor) *MockMatcher {
	return &MockMatcher{Descriptors: descriptors}
}

// ExtractDescriptors returns the configured descriptors.
func (m *MockMatcher) ExtractDescriptors(ctx context.Context, image []byte) ([]identity.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtractCalls++
	m.LastImage = image
	if m.ExtractError != nil {
		return nil, m.ExtractError
	}
	return m.Descriptors, nil
}

// Distance counts the call and returns the Euclidean distance.
func (m *MockMatcher) Distance(a, b identity.Descriptor) float64 {
	m.mu.Lock()
	m.DistanceCalls++
	m.mu.Unlock()
	return matcher.EuclideanDistance(a, b)
}

// MockIndicator records the levels driven on an indicator line. Levels holds
// true for HIGH and false for LOW, in order.
type MockIndicator struct {
	mu       sync.Mutex
	Levels   []bool
	Pulses   []time.Duration
	Releases int

	// Error injection
	PulseError   error
	ReleaseError error
}

// NewMockIndicator creates an idle indicator.
func NewMockIndicator() *MockIndicator {
	return &MockIndicator{}
}

// Pulse records the dwell and a HIGH followed by a LOW, like the real
// indicator. With PulseError set the line still ends LOW.
func (m *MockIndicator) Pulse(ctx context.Context, dwell time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pulses = append(m.Pulses, dwell)
	m.Levels = append(m.Levels, true, false)
	return m.PulseError
}

// Asserted reports whether the line was last driven HIGH.
func (m *MockIndicator) Asserted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Levels) > 0 && m.Levels[len(m.Levels)-1]
}

// Release drives the line LOW.
func (m *MockIndicator) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Releases++
	if m.ReleaseError != nil {
		return m.ReleaseError
	}
	m.Levels = append(m.Levels, false)
	return nil
}

// MockEscalator records escalations.
type MockEscalator struct {
	mu     sync.Mutex
	Alerts []escalation.Alert
	Report escalation.Report
}

// NewMockEscalator creates an escalator that reports success.
func NewMockEscalator() *MockEscalator {
	return &MockEscalator{Report: escalation.Report{Launched: true}}
}

// Escalate records the alert.
func (m *MockEscalator) Escalate(ctx context.Context, alert escalation.Alert) escalation.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, alert)
	return m.Report
}

// Count returns the number of escalations.
func (m *MockEscalator) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// MockNotifier is a mock implementation of escalation.Notifier.
type MockNotifier struct {
	mu     sync.Mutex
	name   string
	Alerts []escalation.Alert

	// Error injection
	NotifyError error
}

// NewMockNotifier creates a notifier with the given name.
func NewMockNotifier(name string) *MockNotifier {
	return &MockNotifier{name: name}
}

// Name returns the notifier name.
func (m *MockNotifier) Name() string {
	return m.name
}

// Notify records the alert.
func (m *MockNotifier) Notify(ctx context.Context, alert escalation.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, alert)
	return m.NotifyError
}

// Count returns the number of Notify calls.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// MockLauncher is a mock implementation of escalation.Launcher.
type MockLauncher struct {
	mu       sync.Mutex
	Launches int

	// Error injection
	LaunchError error
}

// NewMockLauncher creates a launcher that always succeeds.
func NewMockLauncher() *MockLauncher {
	return &MockLauncher{}
}

// Launch counts the call.
func (m *MockLauncher) Launch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Launches++
	return m.LaunchError
}

// Count returns the number of Launch calls.
func (m *MockLauncher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Launches
}

// MockStore is an in-memory identity store.
type MockStore struct {
	mu         sync.Mutex
	identities map[string]identity.Identity
	Images     map[string][]byte

	// Error injection
	ListError error
	AddError  error
}

// NewMockStore creates a store holding the given identities. Ids are
// assigned in order when empty.
func NewMockStore(identities ...identity.Identity) *MockStore {
	m := &MockStore{identities: map[string]identity.Identity{}, Images: map[string][]byte{}}
	for _, ident := range identities {
		if ident.ID == "" {
			ident.ID = identity.NextID(m.identities)
		}
		m.identities[ident.ID] = ident
	}
	return m
}

// List returns the identities ordered by id.
func (m *MockStore) List() ([]identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	return identity.Sorted(m.identities), nil
}

// Find looks up an identity by case-insensitive name.
func (m *MockStore) Find(name string) (identity.Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return identity.Identity{}, false, m.ListError
	}
	for _, ident := range identity.Sorted(m.identities) {
		if identity.SameName(ident.Name, name) {
			return ident, true, nil
		}
	}
	return identity.Identity{}, false, nil
}

// Add stores a new identity, rejecting duplicate names.
func (m *MockStore) Add(name string, descriptor identity.Descriptor, image []byte) (identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddError != nil {
		return identity.Identity{}, m.AddError
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return identity.Identity{}, identity.ErrEmptyName
	}
	if len(descriptor) == 0 {
		return identity.Identity{}, identity.ErrInvalidDescriptor
	}
	for _, ident := range m.identities {
		if identity.SameName(ident.Name, name) {
			return identity.Identity{}, fmt.Errorf("%w: %s", identity.ErrDuplicateIdentity, name)
		}
	}
	ident := identity.Identity{ID: identity.NextID(m.identities), Name: name, Descriptor: descriptor}
	m.identities[ident.ID] = ident
	m.Images[name] = image
	return ident, nil
}

// Len returns the number of identities.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities)
}
