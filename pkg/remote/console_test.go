package remote

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleSession_Ready(t *testing.T) {
	transport := NewMockTransport()
	transport.On("capture-pane", "irb(main):001:0> _\nirb(main):002:0>\n", 0)

	session := NewConsoleSession(transport, "rails_console")
	assert.NoError(t, session.Ready(context.Background()))
}

func TestConsoleSession_NotReady(t *testing.T) {
	transport := NewMockTransport()
	transport.On("capture-pane", "Loading production environment (Rails 7.1)\n", 0)

	session := NewConsoleSession(transport, "rails_console")
	err := session.Ready(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindConsoleNotReady, KindOf(err))
}

func TestConsoleSession_EvaluateFindsMarker(t *testing.T) {
	transport := NewMockTransport()
	captures := 0
	transport.OnFunc("capture-pane", func(MockCall) ([]byte, []byte, int, error) {
		captures++
		if captures == 1 {
			return []byte("irb(main):001:0>\n"), nil, 0, nil
		}
		pane := "load 'j2o_x.rb'\nBEGIN:x\nwork...\nEND:x\nirb(main):002:0>\n"
		return []byte(pane), nil, 0, nil
	})
	transport.On("send-keys", "", 0)

	session := NewConsoleSession(transport, "rails_console")
	out, err := session.Evaluate(context.Background(), "load 'j2o_x.rb'", "END:x", 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(out), "END:x")

	// The command must be typed literally, then committed with Enter.
	var sent []string
	for _, c := range transport.Calls {
		if strings.Contains(c.Cmd, "send-keys") {
			sent = append(sent, c.Cmd)
		}
	}
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0], "-l")
	assert.Contains(t, sent[0], "Enter")
}

func TestConsoleSession_EvaluateRefusesWithoutPrompt(t *testing.T) {
	transport := NewMockTransport()
	transport.On("capture-pane", "still booting...\n", 0)

	session := NewConsoleSession(transport, "rails_console")
	_, err := session.Evaluate(context.Background(), "load 'x.rb'", "END:x", time.Second)
	require.Error(t, err)
	assert.Equal(t, KindConsoleNotReady, KindOf(err))
}

func TestConsoleSession_EvaluateTimeout(t *testing.T) {
	transport := NewMockTransport()
	captures := 0
	transport.OnFunc("capture-pane", func(MockCall) ([]byte, []byte, int, error) {
		captures++
		if captures == 1 {
			return []byte("irb(main):001:0>\n"), nil, 0, nil
		}
		return []byte("still working\n"), nil, 0, nil
	})
	transport.On("send-keys", "", 0)

	session := NewConsoleSession(transport, "rails_console")
	_, err := session.Evaluate(context.Background(), "load 'x.rb'", "END:never", 120*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestContainer_NotRunning(t *testing.T) {
	transport := NewMockTransport()
	transport.On("docker inspect", "false\n", 0)

	container := NewContainer(transport, "openproject")
	err := container.Running(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindContainer, KindOf(err))
}

func TestContainer_Running(t *testing.T) {
	transport := NewMockTransport()
	transport.On("docker inspect", "true\n", 0)

	container := NewContainer(transport, "openproject")
	assert.NoError(t, container.Running(context.Background()))
}
