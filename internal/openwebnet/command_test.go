package openwebnet

import "testing"

func TestCommandSession_CloseWinsOverStopFrame(t *testing.T) {
	var completed bool
	s := newCommandSession(Params{}, CommandRequest{
		Mode:       ModeCommand,
		Command:    "*#4*1##",
		OnComplete: func(string, int) { completed = true },
	})

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// a stop frame matched by the read loop just after Close
	s.complete(nil, ACK, 0)

	if completed {
		t.Error("OnComplete fired after Close")
	}
	if s.finished {
		t.Error("closed session marked finished by a late stop frame")
	}
}
