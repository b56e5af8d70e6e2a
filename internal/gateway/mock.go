package gateway

import "context"

type mockClient struct {
	answer Answer
	err    error
}

// NewMockClient returns a client with a canned answer, for tests and for
// running the daemon without a backend.
func NewMockClient(answer Answer, err error) Client {
	return &mockClient{answer: answer, err: err}
}

func (m *mockClient) Ask(_ context.Context, q Query) (Answer, error) {
	if m.err != nil {
		return Answer{}, m.err
	}
	out := m.answer
	if out.Text == "" {
		out.Text = "[mock answer to: " + q.Text + "]"
	}
	if !q.GenerateAudio {
		out.AudioURL = ""
	}
	return out, nil
}
