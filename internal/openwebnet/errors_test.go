package openwebnet

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestClassifyError(t *testing.T) {
	p := Params{Host: "10.0.0.9", Port: 20000, Mode: ModeCommand}

	tests := []struct {
		name     string
		op       string
		err      error
		wantKind ErrorKind
	}{
		{"generic dial failure", "dial", errors.New("no route"), ErrKindDial},
		{"generic read failure", "read", errors.New("weird"), ErrKindIO},
		{"refused", "dial", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ErrKindRefused},
		{"dns", "dial", &net.OpError{Op: "dial", Err: &net.DNSError{Name: "gw.local", Err: "no such host"}}, ErrKindDNS},
		{"timeout", "dial", os.ErrDeadlineExceeded, ErrKindTimeout},
		{"eof", "read", io.EOF, ErrKindClosed},
		{"local close", "read", fmt.Errorf("read: %w", net.ErrClosed), ErrKindClosed},
		{"reset", "read", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, ErrKindClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.op, p, tt.err)
			if got == nil {
				t.Fatal("ClassifyError() = nil")
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Addr != "10.0.0.9:20000" {
				t.Errorf("Addr = %q", got.Addr)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if err := ClassifyError("read", Params{}, nil); err != nil {
		t.Errorf("ClassifyError(nil) = %v, want nil", err)
	}
}

func TestIsClosed(t *testing.T) {
	p := Params{}
	if !IsClosed(ClassifyError("read", p, io.EOF)) {
		t.Error("EOF should count as closed")
	}
	if !IsClosed(net.ErrClosed) {
		t.Error("net.ErrClosed should count as closed")
	}
	if IsClosed(ClassifyError("dial", p, errors.New("boom"))) {
		t.Error("dial failure should not count as closed")
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: ErrKindRefused, Op: "dial", Addr: "1.2.3.4:20000", Mode: ModeMonitor, Err: errors.New("x")}
	want := "openwebnet MON dial 1.2.3.4:20000: connection refused: x"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
