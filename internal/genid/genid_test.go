package genid

import "testing"

func TestStartStopValidity(t *testing.T) {
	var tok Token

	if tok.IsStarted() {
		t.Fatal("zero-value token should not be started")
	}

	s1 := tok.Start()
	if !s1.Started() {
		t.Fatal("snapshot from Start should report started")
	}
	if !tok.Valid(s1) {
		t.Fatal("snapshot should be valid immediately after Start")
	}

	s2 := tok.Start()
	if tok.Valid(s1) {
		t.Fatal("first snapshot should be invalidated by second Start")
	}
	if !tok.Valid(s2) {
		t.Fatal("second snapshot should be valid")
	}

	tok.Stop()
	if tok.Valid(s2) {
		t.Fatal("snapshot should be invalidated by Stop")
	}
	if tok.IsStarted() {
		t.Fatal("token should report stopped after Stop")
	}
}

func TestRestartReusesToken(t *testing.T) {
	var tok Token

	s1 := tok.Start()
	tok.Stop()
	s2 := tok.Start()

	if tok.Valid(s1) {
		t.Fatal("stale snapshot should never become valid again")
	}
	if !tok.Valid(s2) {
		t.Fatal("fresh snapshot should be valid after restart")
	}
}
