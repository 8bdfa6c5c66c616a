package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/kyleking/slidefill/internal/llm"
	"github.com/kyleking/slidefill/internal/templater"
)

// MockLLM implements llm.Service with testify expectations
type MockLLM struct {
	mock.Mock
}

// Complete returns the configured answer for the prompt
func (m *MockLLM) Complete(ctx context.Context, prompt string, sampling llm.Sampling) (string, error) {
	args := m.Called(ctx, prompt, sampling)
	return args.String(0), args.Error(1)
}

// Configure records the configuration
func (m *MockLLM) Configure(config llm.Config) error {
	args := m.Called(config)
	return args.Error(0)
}

// NewAnsweringLLM returns a mock that answers every prompt with answer
func NewAnsweringLLM(answer string) *MockLLM {
	m := &MockLLM{}
	m.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(answer, nil)

	return m
}

// Substitution records one Substitute call
type Substitution struct {
	ArtifactID   string
	Replacements []templater.Replacement
}

// MockDocuments implements templater.DocumentService in memory with error injection
type MockDocuments struct {
	mu sync.Mutex

	nextID        int
	copies        map[string]string // artifact ID -> title
	titles        []string
	substitutions []Substitution
	errors        map[string]error
	callCounts    map[string]int
	block         chan struct{}
}

// DocumentsOption configures MockDocuments
type DocumentsOption func(*MockDocuments)

// WithCopyError fails Copy for the given title
func WithCopyError(title string, err error) DocumentsOption {
	return func(m *MockDocuments) {
		m.errors["copy:"+title] = err
	}
}

// WithSubstituteError fails Substitute for the copy with the given title
func WithSubstituteError(title string, err error) DocumentsOption {
	return func(m *MockDocuments) {
		m.errors["substitute:"+title] = err
	}
}

// WithBlockingCopy makes Copy wait until ch is closed or the context ends
func WithBlockingCopy(ch chan struct{}) DocumentsOption {
	return func(m *MockDocuments) {
		m.block = ch
	}
}

// NewMockDocuments creates a document service fake
func NewMockDocuments(opts ...DocumentsOption) *MockDocuments {
	m := &MockDocuments{
		copies:     make(map[string]string),
		errors:     make(map[string]error),
		callCounts: make(map[string]int),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Copy creates a fake artifact named title
func (m *MockDocuments) Copy(ctx context.Context, templateID, title string) (string, error) {
	m.mu.Lock()
	m.callCounts["Copy"]++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, exists := m.errors["copy:"+title]; exists {
		return "", err
	}

	m.nextID++
	id := fmt.Sprintf("%s-copy-%d", templateID, m.nextID)
	m.copies[id] = title
	m.titles = append(m.titles, title)

	return id, nil
}

// Substitute records the replacements for an existing artifact
func (m *MockDocuments) Substitute(_ context.Context, artifactID string, replacements []templater.Replacement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCounts["Substitute"]++

	title, exists := m.copies[artifactID]
	if !exists {
		return fmt.Errorf("artifact %s not found", artifactID)
	}

	if err, exists := m.errors["substitute:"+title]; exists {
		return err
	}

	m.substitutions = append(m.substitutions, Substitution{
		ArtifactID:   artifactID,
		Replacements: append([]templater.Replacement(nil), replacements...),
	})

	return nil
}

// CallCount returns how many times method was called
func (m *MockDocuments) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.callCounts[method]
}

// Substitutions returns recorded Substitute calls
func (m *MockDocuments) Substitutions() []Substitution {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Substitution(nil), m.substitutions...)
}

// Titles returns the titles of created copies in creation order
func (m *MockDocuments) Titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.titles...)
}

// Grant records one permission grant
type Grant struct {
	ArtifactID string
	Recipient  string
	Role       string
}

// MockGranter implements share.Granter in memory with error injection
type MockGranter struct {
	mu sync.Mutex

	grants []Grant
	errors map[string]error
	calls  int
}

// NewMockGranter creates a granter fake; failures maps artifact IDs to errors
func NewMockGranter(failures map[string]error) *MockGranter {
	if failures == nil {
		failures = make(map[string]error)
	}

	return &MockGranter{errors: failures}
}

// Grant records the grant unless an error is configured for the artifact
func (m *MockGranter) Grant(_ context.Context, artifactID, recipient, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if err, exists := m.errors[artifactID]; exists {
		return err
	}

	m.grants = append(m.grants, Grant{ArtifactID: artifactID, Recipient: recipient, Role: role})

	return nil
}

// Calls returns how many times Grant was called
func (m *MockGranter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls
}

// Grants returns recorded grants
func (m *MockGranter) Grants() []Grant {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Grant(nil), m.grants...)
}

var _ templater.DocumentService = (*MockDocuments)(nil)
