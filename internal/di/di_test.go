package di_test

import (
	"testing"

	"github.com/fd1az/quote-engine/internal/di"
)

type greeter struct{ name string }

func TestContainer_LazySingleton(t *testing.T) {
	c := di.NewContainer()
	c.Register("name", "quotes")

	token := di.NewToken[*greeter]("test.greeter")
	builds := 0
	di.RegisterToken(c, token, func(sr di.ServiceRegistry) *greeter {
		builds++
		return &greeter{name: sr.Get("name").(string)}
	})

	if builds != 0 {
		t.Fatalf("factory should be lazy, ran %d times", builds)
	}

	first := di.GetToken(c, token)
	second := di.GetToken(c, token)

	if builds != 1 {
		t.Errorf("expected 1 build, got %d", builds)
	}
	if first != second {
		t.Error("expected the same instance on every Get")
	}
	if first.name != "quotes" {
		t.Errorf("expected dependency to resolve, got %q", first.name)
	}
}

func TestContainer_UnknownKeyPanics(t *testing.T) {
	c := di.NewContainer()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown key")
		}
	}()
	c.Get("missing")
}

func TestContainer_Has(t *testing.T) {
	c := di.NewContainer()
	c.Register("config", struct{}{})
	if !c.Has("config") {
		t.Error("expected config to be registered")
	}
	if c.Has("other") {
		t.Error("did not expect other to be registered")
	}
}
