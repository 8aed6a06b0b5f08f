// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/diagnostics"
)

// -- Notifier Mock --

// MockNotifier mocks the operator notification channel.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

// Messages returns the text of every Send call, in order.
func (m *MockNotifier) Messages() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "Send" {
			out = append(out, c.Arguments.String(1))
		}
	}
	return out
}

// -- Diagnostics Mock --

// MockSink mocks the diagnostics sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Capture(ctx context.Context, page browser.Page) (diagnostics.Bundle, error) {
	args := m.Called(ctx, page)
	return args.Get(0).(diagnostics.Bundle), args.Error(1)
}
