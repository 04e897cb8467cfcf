package monolith

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fd1az/quote-engine/internal/di"
)

type fakeModule struct {
	name    string
	stopErr error
	order   *[]string
}

func (m *fakeModule) RegisterServices(di.Container) error { return nil }

func (m *fakeModule) Startup(context.Context, Monolith) error {
	*m.order = append(*m.order, "start:"+m.name)
	return nil
}

func (m *fakeModule) Stop(context.Context, Monolith) error {
	*m.order = append(*m.order, "stop:"+m.name)
	return m.stopErr
}

// plainModule has no Stop method.
type plainModule struct{}

func (plainModule) RegisterServices(di.Container) error     { return nil }
func (plainModule) Startup(context.Context, Monolith) error { return nil }

func TestStopModules_ReverseOrderFirstError(t *testing.T) {
	var order []string
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	modules := []Module{
		&fakeModule{name: "a", stopErr: errA, order: &order},
		plainModule{},
		&fakeModule{name: "b", stopErr: errB, order: &order},
	}

	a := &app{container: di.NewContainer()}
	ctx := context.Background()
	assert.NoError(t, a.StartModules(ctx, modules...))

	err := a.StopModules(ctx, modules...)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, order)
}
