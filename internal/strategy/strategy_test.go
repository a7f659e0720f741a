package strategy

import (
	"errors"
	"testing"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string                                          { return s.name }
func (s *stubStrategy) OnStart(_ *portfolio.State) []domain.Order             { return nil }
func (s *stubStrategy) OnBar(_ domain.Bar, _ *portfolio.State) []domain.Order { return nil }
func (s *stubStrategy) OnFinish(_ *portfolio.State)                           {}

func stubFactory(name string) Factory {
	return func(_ map[string]any) (Strategy, error) {
		return &stubStrategy{name: name}, nil
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", stubFactory("test-strategy"))

	f, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	s, err := f(nil)
	if err != nil {
		t.Fatalf("factory returned error: %v", err)
	}
	if s.Name() != "test-strategy" {
		t.Errorf("factory built strategy with Name() = %q, want %q", s.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryNew(t *testing.T) {
	r := NewRegistry()
	r.Register("alpha", stubFactory("alpha"))

	s, err := r.New("alpha", nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	other, _ := r.New("alpha", nil)
	if s == other {
		t.Error("New should build a fresh instance on every call")
	}

	_, err = r.New("missing", nil)
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("New(missing) error = %v, want ErrUnknownStrategy", err)
	}
}

func TestRegistryNew_FactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("bad params")
	r.Register("broken", func(_ map[string]any) (Strategy, error) { return nil, boom })

	_, err := r.New("broken", nil)
	if !errors.Is(err, boom) {
		t.Errorf("New(broken) error = %v, want wrapped %v", err, boom)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory("beta"))
	r.Register("alpha", stubFactory("alpha"))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}
