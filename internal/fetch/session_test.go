package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeSession struct {
	calls []string

	initFailures int // Init fails this many times before succeeding
	cmdErr       error
	exitErr      error
	busyPolls    int // PracticeState reports busy this many times in total
}

func (s *fakeSession) Config(key, value string) error {
	s.calls = append(s.calls, "config "+key+value)
	return nil
}

func (s *fakeSession) Init() error {
	s.calls = append(s.calls, "init")
	if s.initFailures > 0 {
		s.initFailures--
		return errors.New("no link")
	}
	return nil
}

func (s *fakeSession) Attach(device int) error {
	s.calls = append(s.calls, "attach")
	return nil
}

func (s *fakeSession) Cmd(command string) error {
	s.calls = append(s.calls, "cmd "+command)
	return s.cmdErr
}

func (s *fakeSession) PracticeState() (int, error) {
	if s.busyPolls > 0 {
		s.busyPolls--
		return 1, nil
	}
	return 0, nil
}

func (s *fakeSession) Exit() error {
	s.calls = append(s.calls, "exit")
	return s.exitErr
}

func (s *fakeSession) count(prefix string) int {
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func sessionOpts(s Session) SessionOptions {
	return SessionOptions{
		Session:         s,
		Address:         "localhost",
		Port:            "20000",
		PacketLength:    "1024",
		Commands:        []string{"PRINT VERSION.HARDWARE()", "AREA.SAVE output.txt"},
		ConnectAttempts: 3,
		PollPeriod:      time.Millisecond,
		PollTimeout:     time.Second,
		Sleep:           func(time.Duration) {},
	}
}

func TestSessionTriggerRunsCommandsInOrder(t *testing.T) {
	s := &fakeSession{}
	trig, err := NewSessionTrigger(sessionOpts(s))
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}
	if err := trig.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	want := []string{
		"config NODE=localhost", "config PORT=20000", "config PACKLEN=1024",
		"init", "attach",
		"cmd PRINT VERSION.HARDWARE()", "cmd AREA.SAVE output.txt",
		"exit",
	}
	if strings.Join(s.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v\nwant    %v", s.calls, want)
	}
}

func TestSessionTriggerRetriesConnect(t *testing.T) {
	s := &fakeSession{initFailures: 2}
	trig, err := NewSessionTrigger(sessionOpts(s))
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}
	if err := trig.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if got := s.count("init"); got != 3 {
		t.Fatalf("init calls = %d, want 3", got)
	}
}

func TestSessionTriggerConnectExhausted(t *testing.T) {
	s := &fakeSession{initFailures: 10}
	trig, err := NewSessionTrigger(sessionOpts(s))
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}
	err = trig.Trigger(context.Background())
	var se *SessionError
	if !errors.As(err, &se) || se.Op != "init" {
		t.Fatalf("err = %v, want init *SessionError", err)
	}
	if s.count("exit") != 0 {
		t.Fatal("exit called without a connection")
	}
	if s.count("cmd") != 0 {
		t.Fatal("commands ran without a connection")
	}
}

func TestSessionTriggerCommandFailureStillExits(t *testing.T) {
	s := &fakeSession{cmdErr: errors.New("rejected")}
	trig, err := NewSessionTrigger(sessionOpts(s))
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}
	err = trig.Trigger(context.Background())
	var se *SessionError
	if !errors.As(err, &se) || !strings.HasPrefix(se.Op, "cmd") {
		t.Fatalf("err = %v, want cmd *SessionError", err)
	}
	if s.count("cmd") != 1 {
		t.Fatalf("ran %d commands, want to stop after the first", s.count("cmd"))
	}
	if s.count("exit") != 1 {
		t.Fatal("session not closed after command failure")
	}
}

func TestSessionTriggerExitFailureFails(t *testing.T) {
	s := &fakeSession{exitErr: errors.New("hung")}
	trig, err := NewSessionTrigger(sessionOpts(s))
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}
	err = trig.Trigger(context.Background())
	var se *SessionError
	if !errors.As(err, &se) || se.Op != "exit" {
		t.Fatalf("err = %v, want exit *SessionError", err)
	}
}

func TestSessionTriggerPracticeScript(t *testing.T) {
	s := &fakeSession{busyPolls: 3}
	opts := sessionOpts(s)
	opts.UseScript = true
	opts.ScriptPath = filepath.Join(t.TempDir(), "fetch.cmm")

	trig, err := NewSessionTrigger(opts)
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}

	b, err := os.ReadFile(trig.ScriptPath())
	if err != nil {
		t.Fatalf("script not written: %v", err)
	}
	if string(b) != "PRINT VERSION.HARDWARE()\nAREA.SAVE output.txt" {
		t.Fatalf("script = %q", b)
	}

	if err := trig.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if s.count("cmd") != 1 || s.count("cmd DO "+trig.ScriptPath()) != 1 {
		t.Fatalf("calls = %v", s.calls)
	}
	if s.busyPolls != 0 {
		t.Fatalf("practice state not drained, %d busy polls left", s.busyPolls)
	}
}

func TestSessionTriggerPracticeTimeout(t *testing.T) {
	s := &fakeSession{busyPolls: 1 << 30}
	opts := sessionOpts(s)
	opts.PollTimeout = 20 * time.Millisecond
	opts.Sleep = time.Sleep

	trig, err := NewSessionTrigger(opts)
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}
	err = trig.Trigger(context.Background())
	var se *SessionError
	if !errors.As(err, &se) || se.Op != "practice state" {
		t.Fatalf("err = %v, want practice state *SessionError", err)
	}
	if s.count("exit") != 1 {
		t.Fatal("session not closed after timeout")
	}
}

func TestNewSessionTriggerNeedsCommands(t *testing.T) {
	opts := sessionOpts(&fakeSession{})
	opts.Commands = nil
	if _, err := NewSessionTrigger(opts); !errors.Is(err, ErrNoCommands) {
		t.Fatalf("err = %v, want ErrNoCommands", err)
	}
}

func TestSessionTriggerIgnoresCancellation(t *testing.T) {
	s := &fakeSession{initFailures: 1, busyPolls: 2}
	trig, err := NewSessionTrigger(sessionOpts(s))
	if err != nil {
		t.Fatalf("NewSessionTrigger: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := trig.Trigger(ctx); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if s.count("cmd") != 2 {
		t.Fatalf("calls = %v, want both commands", s.calls)
	}
	if s.count("exit") != 1 {
		t.Fatal("session not closed")
	}
}
