package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

func testProcess(t *testing.T) (*Process, *int) {
	t.Helper()
	code := -1
	p := newProcess("test-worker", &config.Config{}, logger.Nop())
	p.exit = func(c int) { code = c }
	return p, &code
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	p, _ := testProcess(t)
	var order []string
	p.OnClose("db", func() error { order = append(order, "db"); return nil })
	p.OnClose("redis", func() error { order = append(order, "redis"); return errors.New("already closed") })
	p.OnClose("transport", func() error { order = append(order, "transport"); return nil })

	p.Close()
	require.Equal(t, []string{"transport", "redis", "db"}, order)

	p.Close()
	require.Len(t, order, 3, "closers run once")
}

func TestMustClosesBeforeExit(t *testing.T) {
	p, code := testProcess(t)
	closed := false
	p.OnClose("db", func() error { closed = true; return nil })

	p.Must("build service", nil)
	require.Equal(t, -1, *code)
	require.False(t, closed)

	p.Must("build service", errors.New("boom"))
	require.Equal(t, 1, *code)
	require.True(t, closed)
}

func TestSignalContextCarriesIdentity(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "refund-7")
	p, _ := testProcess(t)

	ctx, stop := p.SignalContext(map[string]any{"transport": "kafka"})
	defer stop()

	require.Equal(t, "refund-7", p.Instance())
	require.NoError(t, ctx.Err())
	stop()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
